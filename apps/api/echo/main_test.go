package echoapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/aits/apps/api/echo"
	"github.com/trezcool/aits/core/user"
	"github.com/trezcool/aits/services/metrics"
	"github.com/trezcool/aits/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errInvalidToken = httpErr{Error: "invalid or expired jwt"}
)

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantData interface{}
}

func newAuthRequest(t *testing.T, method, path, token string, data ...interface{}) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	if len(data) > 0 && data[0] != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(data[0]))
	}
	if method == "" {
		method = http.MethodGet
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func serve(t *testing.T, srv http.Handler, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(t, tt.method, tt.path, tt.token, tt.body)
	srv.ServeHTTP(rec, req)
	return rec
}

// checkCodeAndData compares the response with the JSON encoding of tt.wantData, when set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData != nil {
		want, err := json.Marshal(tt.wantData)
		require.NoError(t, err)
		assert.JSONEq(t, string(want), rec.Body.String())
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// login returns the token pair of usr, obtained through the API.
func login(t *testing.T, srv http.Handler, usr user.User) echoapi.LoginResponse {
	t.Helper()
	rec := serve(t, srv, httpTest{
		method: http.MethodPost,
		path:   "/api/login",
		body:   user.Credentials{Identifier: usr.Username, Password: testutil.Password},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	return resp
}

func issuePath(id int, action ...string) string {
	path := fmt.Sprintf("/api/issues/%d", id)
	if len(action) > 0 {
		path += "/" + action[0]
	}
	return path
}

func TestServer_home(t *testing.T) {
	app := testutil.NewApp(t)
	rec := serve(t, app.Server, httpTest{path: "/"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the AITS API!", rec.Body.String())

	// metrics are only served with a registry
	rec = serve(t, app.Server, httpTest{path: "/metrics"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_metrics(t *testing.T) {
	app := testutil.NewApp(t)
	opts := *app.Opts
	opts.Registry = metrics.NewRegistry()
	srv := echoapi.NewServer(&opts)

	serve(t, srv, httpTest{path: "/"})
	serve(t, srv, httpTest{path: "/api/users/me"})

	rec := serve(t, srv, httpTest{path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aits_http_requests_total{method="GET",route="/",status_code="200"} 1`)
	assert.Contains(t, rec.Body.String(), `aits_http_requests_total{method="GET",route="/api/users/me",status_code="401"} 1`)
}
