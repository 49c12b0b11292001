package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/aits/client"
	"github.com/trezcool/aits/core/issue"
	"github.com/trezcool/aits/core/session"
	"github.com/trezcool/aits/core/user"
	"github.com/trezcool/aits/services/metrics"
	"github.com/trezcool/aits/tests"
)

func newClient(t *testing.T, srv *httptest.Server, opts ...client.Option) *client.Client {
	t.Helper()
	c, err := client.New(srv.URL+"/api", opts...)
	require.NoError(t, err)
	return c
}

func creds(usr user.User) client.Credentials {
	return client.Credentials{Identifier: usr.Username, Password: testutil.Password}
}

// expiredSession stores the tokens of a login made an hour ago: the access token
// has expired, the refresh token has not.
func expiredSession(t *testing.T, app *testutil.App, usr user.User) *session.MemoryStore {
	t.Helper()
	past := httptest.NewServer(app.WithClock(clockwork.NewFakeClockAt(time.Now().Add(-time.Hour))))
	t.Cleanup(past.Close)

	store := session.NewMemoryStore()
	_, err := newClient(t, past, client.WithStore(store)).Login(context.Background(), creds(usr))
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "empty", baseURL: "", wantErr: true},
		{name: "relative", baseURL: "api", wantErr: true},
		{name: "ok", baseURL: "http://localhost:8000/api/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := client.New(tt.baseURL)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c.Session())
		})
	}
}

func TestClient_LoginAndLogout(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	srv := app.Serve(t)
	usr := testutil.CreateUser(t, app.UserRepo, "amina", user.RoleStudent, true)

	store := session.NewMemoryStore()
	c := newClient(t, srv, client.WithStore(store))

	_, err := c.Login(ctx, client.Credentials{Identifier: "amina", Password: "wrong"})
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "%v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	pair, _ := store.Load(ctx)
	assert.True(t, pair.IsZero())

	res, err := c.Login(ctx, creds(usr))
	require.NoError(t, err)
	assert.Equal(t, usr.ID, res.User.ID)
	pair, _ = store.Load(ctx)
	assert.Equal(t, session.TokenPair{Access: res.Access, Refresh: res.Refresh}, pair)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "amina", me.Username)

	require.NoError(t, c.Logout(ctx))
	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.ErrorIs(t, err, session.ErrNoRefreshToken)

	_, err = c.Restore(ctx)
	assert.Equal(t, client.ErrNotLoggedIn, err)
}

func TestClient_Register(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	c := newClient(t, app.Serve(t))

	reg := client.Registration{
		Username:        "grace",
		Email:           "grace@aits.test",
		FirstName:       "Grace",
		LastName:        "Nakato",
		Role:            user.RoleLecturer,
		Password:        testutil.Password,
		PasswordConfirm: "nope",
	}
	_, err := c.Register(ctx, reg)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "%v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Fields, "password_confirm")

	reg.PasswordConfirm = testutil.Password
	usr, err := c.Register(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, "grace", usr.Username)

	_, err = c.Login(ctx, client.Credentials{Identifier: "grace", Password: testutil.Password, Role: user.RoleLecturer})
	assert.NoError(t, err)
}

func TestClient_expiredAccessTokenIsRefreshedOnce(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	srv := app.Serve(t)
	usr := testutil.CreateUser(t, app.UserRepo, "amina", user.RoleStudent, true)
	store := expiredSession(t, app, usr)
	stale, _ := store.Load(ctx)

	reg := prometheus.NewRegistry()
	sm := metrics.NewSessionMetrics(reg)
	c := newClient(t, srv, client.WithStore(store), client.WithObserver(sm))

	const n = 5
	var wg sync.WaitGroup
	var failed int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ListIssues(ctx, client.IssueFilter{}); err != nil {
				atomic.AddInt32(&failed, 1)
				t.Errorf("ListIssues() error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&failed))
	assert.Equal(t, float64(1), promtest.ToFloat64(sm.Refreshes.WithLabelValues("success")))
	assert.Equal(t, float64(0), promtest.ToFloat64(sm.Refreshes.WithLabelValues("failure")))

	pair, _ := store.Load(ctx)
	assert.NotEqual(t, stale.Access, pair.Access)
	assert.Equal(t, stale.Refresh, pair.Refresh)
}

func TestClient_Restore(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	srv := app.Serve(t)
	usr := testutil.CreateUser(t, app.UserRepo, "amina", user.RoleStudent, true)

	t.Run("refreshes an expired access token", func(t *testing.T) {
		c := newClient(t, srv, client.WithStore(expiredSession(t, app, usr)))
		me, err := c.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, usr.ID, me.ID)
	})

	t.Run("expires a revoked session", func(t *testing.T) {
		store := session.NewMemoryStore(session.TokenPair{Access: "a1", Refresh: "r1"})
		var expired []error
		c := newClient(t, srv, client.WithStore(store), client.WithOnExpired(func(err error) {
			expired = append(expired, err)
		}))

		_, err := c.Restore(ctx)
		assert.ErrorIs(t, err, session.ErrSessionExpired)
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr), "%v", err)
		assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
		assert.Equal(t, "invalid or expired refresh token", apiErr.Message)

		require.Len(t, expired, 1)
		pair, _ := store.Load(ctx)
		assert.True(t, pair.IsZero())
	})
}

func TestClient_issueWorkflow(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	srv := app.Serve(t)

	login := func(usr user.User) *client.Client {
		c := newClient(t, srv)
		_, err := c.Login(ctx, creds(usr))
		require.NoError(t, err)
		return c
	}
	student := login(testutil.CreateUser(t, app.UserRepo, "amina", user.RoleStudent, true))
	lecturer := login(testutil.CreateUser(t, app.UserRepo, "cissy", user.RoleLecturer, true))
	registrar := login(testutil.CreateUser(t, app.UserRepo, "faith", user.RoleRegistrar, true))

	iss, err := student.CreateIssue(ctx, issue.NewIssue{Category: issue.CategoryMissingMarks, Description: "CSC 1100 marks missing"})
	require.NoError(t, err)
	assert.Equal(t, issue.StatusPending, iss.Status)

	desc := "CSC 1100 test marks missing"
	iss, err = student.UpdateIssue(ctx, iss.ID, issue.UpdateIssue{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, iss.Description)

	_, err = lecturer.GetIssue(ctx, iss.ID)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "%v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	_, err = student.ListUsers(ctx, user.RoleLecturer)
	require.True(t, errors.As(err, &apiErr), "%v", err)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	lecturers, err := registrar.ListUsers(ctx, user.RoleLecturer)
	require.NoError(t, err)
	require.Len(t, lecturers, 1)

	iss, err = registrar.AssignIssue(ctx, iss.ID, lecturers[0].ID)
	require.NoError(t, err)
	assert.Equal(t, issue.StatusInProgress, iss.Status)

	assigned, err := lecturer.ListIssues(ctx, client.IssueFilter{Status: issue.StatusInProgress})
	require.NoError(t, err)
	require.Len(t, assigned, 1)

	iss, err = lecturer.ResolveIssue(ctx, iss.ID)
	require.NoError(t, err)
	assert.Equal(t, issue.StatusResolved, iss.Status)

	notes, err := student.ListNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "Your issue #1 has been resolved", notes[0].Message)

	note, err := student.MarkNotificationRead(ctx, notes[0].ID)
	require.NoError(t, err)
	assert.True(t, note.IsRead)

	require.NoError(t, registrar.DeleteIssue(ctx, iss.ID))
	issues, err := registrar.ListIssues(ctx, client.IssueFilter{})
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestWithPaths(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access":"a2"}`))
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, client.WithPaths(client.Paths{Refresh: "/auth/jwt/refresh/"}))
	require.NoError(t, err)

	access, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", access)
	assert.Equal(t, []string{"/auth/jwt/refresh/"}, got)
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  *client.APIError
		want string
	}{
		{name: "message", err: &client.APIError{Status: 400, Message: "invalid credentials"}, want: "400: invalid credentials"},
		{
			name: "fields",
			err:  &client.APIError{Status: 400, Fields: map[string]string{"username": "taken", "email": "invalid"}},
			want: "400: email: invalid; username: taken",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
