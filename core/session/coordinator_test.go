package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backend accepts requests bearing its valid token and rejects the rest with a 401.
type backend struct {
	mu     sync.Mutex
	valid  string
	status int // forced response status, if set
	auths  []string
	bodies []string
}

func newBackend(t *testing.T, valid string) (*backend, *httptest.Server) {
	b := &backend{valid: valid}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		b.auths = append(b.auths, r.Header.Get("Authorization"))
		b.bodies = append(b.bodies, string(body))
		valid, status := b.valid, b.status
		b.mu.Unlock()

		switch {
		case status != 0:
			w.WriteHeader(status)
		case BearerToken(r) != valid:
			w.WriteHeader(http.StatusUnauthorized)
		default:
			_, _ = io.WriteString(w, "ok:"+valid)
		}
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) seen() ([]string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auths...), append([]string(nil), b.bodies...)
}

type fakeRefresher struct {
	calls   int32
	release chan struct{} // blocks Refresh until closed, if set
	access  string
	err     error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	if refreshToken != "r1" {
		return "", errors.New("unknown refresh token")
	}
	return f.access, f.err
}

func (f *fakeRefresher) count() int { return int(atomic.LoadInt32(&f.calls)) }

func setup(t *testing.T, store Store, ref Refresher, opts ...func(*Options)) (*Coordinator, *http.Client) {
	o := Options{Store: store, Refresher: ref}
	for _, opt := range opts {
		opt(&o)
	}
	c, err := NewCoordinator(o)
	require.NoError(t, err)
	return c, &http.Client{Transport: &Transport{Session: c}}
}

func get(t *testing.T, client *http.Client, url string) (*http.Response, string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body), nil
}

func TestNewCoordinator_requiresRefresher(t *testing.T) {
	_, err := NewCoordinator(Options{})
	assert.Error(t, err)
}

func TestCoordinator_Attach(t *testing.T) {
	ctx := context.Background()
	c, _ := setup(t, NewMemoryStore(), &fakeRefresher{})

	req := httptest.NewRequest(http.MethodGet, "/issues", nil)
	assert.Empty(t, c.Attach(ctx, req).Header.Get("Authorization"), "no session, no credentials")

	require.NoError(t, c.Start(ctx, TokenPair{Access: "a1", Refresh: "r1"}))
	out := c.Attach(ctx, req)
	assert.Equal(t, "Bearer a1", out.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("Authorization"), "original request must not be mutated")

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.Attach(ctx, req).Header.Get("Authorization"))
}

func TestTransport_loginThenRequest(t *testing.T) {
	b, srv := newBackend(t, "a1")
	c, client := setup(t, NewMemoryStore(), &fakeRefresher{})
	require.NoError(t, c.Start(context.Background(), TokenPair{Access: "a1", Refresh: "r1"}))

	resp, body, err := get(t, client, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok:a1", body)

	auths, _ := b.seen()
	assert.Equal(t, []string{"Bearer a1"}, auths)
}

func TestTransport_refreshesOnceForConcurrentRequests(t *testing.T) {
	const n = 5
	b, srv := newBackend(t, "a2")
	store := NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"})
	ref := &fakeRefresher{release: make(chan struct{}), access: "a2"}
	c, client := setup(t, store, ref)

	type result struct {
		status int
		body   string
		err    error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func() {
			resp, body, err := get(t, client, srv.URL)
			if err != nil {
				results <- result{err: err}
				return
			}
			results <- result{status: resp.StatusCode, body: body}
		}()
	}

	// every request but the refreshing one waits on the queue
	require.Eventually(t, func() bool { return c.Pending() == n-1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, c.Refreshing())
	close(ref.release)

	for i := 0; i < n; i++ {
		res := <-results
		require.NoError(t, res.err)
		assert.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "ok:a2", res.body)
	}
	assert.Equal(t, 1, ref.count())
	assert.False(t, c.Refreshing())
	assert.Equal(t, 0, c.Pending())

	pair, _ := store.Load(context.Background())
	assert.Equal(t, TokenPair{Access: "a2", Refresh: "r1"}, pair)

	auths, _ := b.seen()
	require.Len(t, auths, 2*n)
	var stale, fresh int
	for _, auth := range auths {
		switch auth {
		case "Bearer a1":
			stale++
		case "Bearer a2":
			fresh++
		}
	}
	assert.Equal(t, n, stale)
	assert.Equal(t, n, fresh)
}

func TestTransport_refreshFailureRejectsQueue(t *testing.T) {
	const n = 4
	_, srv := newBackend(t, "a2")
	errBoom := errors.New("refresh rejected: 401")
	store := NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"})
	ref := &fakeRefresher{release: make(chan struct{}), err: errBoom}

	var expired int32
	c, client := setup(t, store, ref, func(o *Options) {
		o.OnExpired = func(error) { atomic.AddInt32(&expired, 1) }
	})

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _, err := get(t, client, srv.URL)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return c.Pending() == n-1 }, 2*time.Second, 5*time.Millisecond)
	close(ref.release)

	var first *ExpiredError
	for i := 0; i < n; i++ {
		err := <-errs
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.ErrorIs(t, err, errBoom)

		var expErr *ExpiredError
		require.ErrorAs(t, err, &expErr)
		if first == nil {
			first = expErr
		}
		assert.Same(t, first, expErr, "every request of the episode gets the same error")
	}
	assert.Equal(t, 1, ref.count())
	assert.EqualValues(t, 1, atomic.LoadInt32(&expired))

	pair, _ := store.Load(context.Background())
	assert.True(t, pair.IsZero(), "tokens must be cleared")
}

func TestTransport_refreshRejectedClearsSession(t *testing.T) {
	b, srv := newBackend(t, "a2")
	store := NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"})
	c, client := setup(t, store, &fakeRefresher{err: errors.New("refresh rejected: 401")})

	_, _, err := get(t, client, srv.URL)
	assert.ErrorIs(t, err, ErrSessionExpired)

	pair, _ := c.Tokens(context.Background())
	assert.True(t, pair.IsZero())

	// no further authorized requests
	_, _, err = get(t, client, srv.URL)
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	auths, _ := b.seen()
	assert.Equal(t, []string{"Bearer a1", ""}, auths)
}

func TestTransport_non401NeverRefreshes(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			b, srv := newBackend(t, "a1")
			b.status = status
			ref := &fakeRefresher{access: "a2"}
			_, client := setup(t, NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"}), ref)

			resp, _, err := get(t, client, srv.URL)
			require.NoError(t, err)
			assert.Equal(t, status, resp.StatusCode)
			assert.Equal(t, 0, ref.count())
		})
	}
}

func TestTransport_transportErrorSurfacedUnchanged(t *testing.T) {
	_, srv := newBackend(t, "a1")
	srv.Close()
	ref := &fakeRefresher{access: "a2"}
	_, client := setup(t, NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"}), ref)

	_, _, err := get(t, client, srv.URL)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 0, ref.count())
}

func TestTransport_retriedRequestIsNotRetriedAgain(t *testing.T) {
	b, srv := newBackend(t, "never-valid")
	ref := &fakeRefresher{access: "a2"}
	store := NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"})
	_, client := setup(t, store, ref)

	resp, _, err := get(t, client, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, ref.count())

	auths, _ := b.seen()
	assert.Equal(t, []string{"Bearer a1", "Bearer a2"}, auths)

	// the refresh itself succeeded: the session survives
	pair, _ := store.Load(context.Background())
	assert.Equal(t, TokenPair{Access: "a2", Refresh: "r1"}, pair)
}

func TestTransport_replaysBody(t *testing.T) {
	b, srv := newBackend(t, "a2")
	_, client := setup(t, NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"}), &fakeRefresher{access: "a2"})

	// io.NopCloser hides the reader type: http.NewRequest cannot set GetBody
	req, err := http.NewRequest(http.MethodPost, srv.URL, io.NopCloser(strings.NewReader(`{"category":"appeal"}`)))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, bodies := b.seen()
	assert.Equal(t, []string{`{"category":"appeal"}`, `{"category":"appeal"}`}, bodies)
}

func TestTransport_refreshTimeoutFailsQueue(t *testing.T) {
	_, srv := newBackend(t, "a2")
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	ref := RefresherFunc(func(context.Context, string) (string, error) {
		<-block // a stalled backend that ignores cancellation
		return "a2", nil
	})
	store := NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"})
	_, client := setup(t, store, ref, func(o *Options) { o.RefreshTimeout = 20 * time.Millisecond })

	_, _, err := get(t, client, srv.URL)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, ErrRefreshTimeout)

	pair, _ := store.Load(context.Background())
	assert.True(t, pair.IsZero())
}

func TestCoordinator_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("already refreshed", func(t *testing.T) {
		ref := &fakeRefresher{access: "a3"}
		c, _ := setup(t, NewMemoryStore(TokenPair{Access: "a2", Refresh: "r1"}), ref)

		token, err := c.Refresh(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, "a2", token)
		assert.Equal(t, 0, ref.count())
	})

	t.Run("no refresh token", func(t *testing.T) {
		ref := &fakeRefresher{access: "a2"}
		c, _ := setup(t, NewMemoryStore(TokenPair{Access: "a1"}), ref)

		_, err := c.Refresh(ctx, "a1")
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.ErrorIs(t, err, ErrNoRefreshToken)
		assert.Equal(t, 0, ref.count())
	})

	t.Run("empty access token", func(t *testing.T) {
		c, _ := setup(t, NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"}), &fakeRefresher{})

		_, err := c.Refresh(ctx, "a1")
		assert.ErrorIs(t, err, ErrEmptyAccessToken)
	})

	t.Run("queued caller gives up", func(t *testing.T) {
		ref := &fakeRefresher{release: make(chan struct{}), access: "a2"}
		c, _ := setup(t, NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"}), ref)

		done := make(chan string, 1)
		go func() {
			token, _ := c.Refresh(ctx, "a1")
			done <- token
		}()
		require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)

		wctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := c.Refresh(wctx, "a1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, c.Pending(), "a caller that gave up leaves the queue")

		close(ref.release)
		assert.Equal(t, "a2", <-done)
		assert.Equal(t, 1, ref.count())
	})
}

func TestCoordinator_Refresh_afterFailedRefresh(t *testing.T) {
	ctx := context.Background()
	ref := &fakeRefresher{err: errors.New("refresh rejected: 401")}
	var expired int32
	c, _ := setup(t, NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"}), ref, func(o *Options) {
		o.OnExpired = func(error) { atomic.AddInt32(&expired, 1) }
	})

	_, err1 := c.Refresh(ctx, "a1")
	require.ErrorIs(t, err1, ErrSessionExpired)

	// a late 401 of the same session does not start another episode
	_, err2 := c.Refresh(ctx, "a1")
	assert.Same(t, err1, err2)
	assert.Equal(t, 1, ref.count())
	assert.EqualValues(t, 1, atomic.LoadInt32(&expired))

	// a new login starts over
	require.NoError(t, c.Start(ctx, TokenPair{Access: "b1", Refresh: "r1"}))
	_, err3 := c.Refresh(ctx, "b1")
	assert.ErrorIs(t, err3, ErrSessionExpired)
	assert.NotSame(t, err1, err3)
	assert.Equal(t, 2, ref.count())
	assert.EqualValues(t, 2, atomic.LoadInt32(&expired))
}

func TestCoordinator_Refresh_sessionChangedMeanwhile(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		refreshErr error
		change     func(c *Coordinator) error
		wantToken  string
		wantErr    error
		wantPair   TokenPair
	}{
		{
			name:    "logout during a successful refresh",
			change:  func(c *Coordinator) error { return c.Logout(ctx) },
			wantErr: ErrLoggedOut,
		},
		{
			name:       "logout during a failed refresh",
			refreshErr: errors.New("refresh rejected: 401"),
			change:     func(c *Coordinator) error { return c.Logout(ctx) },
			wantErr:    ErrLoggedOut,
		},
		{
			name:      "login during a successful refresh",
			change:    func(c *Coordinator) error { return c.Start(ctx, TokenPair{Access: "b1", Refresh: "rb"}) },
			wantToken: "b1",
			wantPair:  TokenPair{Access: "b1", Refresh: "rb"},
		},
		{
			name:       "login during a failed refresh",
			refreshErr: errors.New("refresh rejected: 401"),
			change:     func(c *Coordinator) error { return c.Start(ctx, TokenPair{Access: "b1", Refresh: "rb"}) },
			wantToken:  "b1",
			wantPair:   TokenPair{Access: "b1", Refresh: "rb"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := &fakeRefresher{release: make(chan struct{}), access: "a2", err: tt.refreshErr}
			store := NewMemoryStore(TokenPair{Access: "a1", Refresh: "r1"})
			var expired int32
			c, _ := setup(t, store, ref, func(o *Options) {
				o.OnExpired = func(error) { atomic.AddInt32(&expired, 1) }
			})

			type result struct {
				token string
				err   error
			}
			results := make(chan result, 2)
			refresh := func() {
				token, err := c.Refresh(ctx, "a1")
				results <- result{token, err}
			}
			go refresh()
			require.Eventually(t, c.Refreshing, time.Second, time.Millisecond)
			go refresh()
			require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)

			require.NoError(t, tt.change(c))
			close(ref.release)

			for i := 0; i < 2; i++ {
				res := <-results
				assert.Equal(t, tt.wantToken, res.token)
				if tt.wantErr != nil {
					assert.ErrorIs(t, res.err, tt.wantErr)
				} else {
					assert.NoError(t, res.err)
				}
			}
			pair, _ := store.Load(ctx)
			assert.Equal(t, tt.wantPair, pair)
			assert.EqualValues(t, 0, atomic.LoadInt32(&expired))
			assert.False(t, c.Refreshing())
		})
	}
}
