package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandler_UsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/api/courses/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/courses/{id}", "418"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/courses/abc", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/courses/{id}", "418"))
	assert.Equal(t, before+1, after)
	assert.Zero(t, testutil.ToFloat64(httpInFlight))
}

func TestCanonicalPath_Fallback(t *testing.T) {
	tests := map[string]string{
		"/":                    "/",
		"/api/courses/abc/xyz": "/api/courses",
		"/dashboard/settings":  "/dashboard",
	}
	for path, want := range tests {
		assert.Equal(t, want, canonicalPath(httptest.NewRequest(http.MethodGet, path, nil)), path)
	}
}

func TestDatabaseAndServerCollectors(t *testing.T) {
	SetDatabaseConnected(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(dbConnected))
	SetDatabaseConnected(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(dbConnected))

	before := testutil.ToFloat64(dbConnectAttempts.WithLabelValues("failure"))
	RecordConnectAttempt(false)
	assert.Equal(t, before+1, testutil.ToFloat64(dbConnectAttempts.WithLabelValues("failure")))

	restarts := testutil.ToFloat64(serverRestarts)
	RecordRestart()
	assert.Equal(t, restarts+1, testutil.ToFloat64(serverRestarts))

	SetServerReady(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(serverReady))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	RecordRequestTimeout()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "aetherlms_http_request_timeouts_total"))
}
