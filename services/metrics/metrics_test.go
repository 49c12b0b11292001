package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMetrics(t *testing.T) {
	m := NewSessionMetrics(prometheus.NewRegistry())

	m.RefreshStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshing))
	m.RequestQueued()
	m.RequestQueued()
	m.RefreshFinished(nil, 20*time.Millisecond)

	m.RefreshStarted()
	m.RefreshFinished(errors.New("refresh rejected"), time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.Refreshing))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueuedRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RefreshDuration))
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/issues/:id", func(c echo.Context) error { return c.String(http.StatusOK, c.Param("id")) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })
	e.GET("/metrics", echo.WrapHandler(Handler(reg)))

	for _, path := range []string{"/issues/1", "/issues/2", "/boom", "/metrics"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/issues/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/boom", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "aits_http_requests_total"))
	assert.False(t, strings.Contains(rec.Body.String(), `route="/metrics"`))
}
