// Package metrics holds the Prometheus collectors for the LMS server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aetherlms"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 13), // 5ms to ~20s
		},
		[]string{"method", "path"},
	)

	httpTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_timeouts_total",
			Help:      "Requests answered with 504 after exceeding the request timeout.",
		},
	)

	panics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_panics_total",
			Help:      "Panics recovered, by component.",
		},
		[]string{"component"},
	)

	dbConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connected",
			Help:      "1 when the database connection is established.",
		},
	)

	dbConnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connect_attempts_total",
			Help:      "Database connection attempts by result.",
		},
		[]string{"result"},
	)

	dbReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "reconnects_total",
			Help:      "Forced reconnect sequences by result.",
		},
		[]string{"result"},
	)

	dbOperationRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operation_retries_total",
			Help:      "Store operations retried after a connection-class failure.",
		},
		[]string{"operation"},
	)

	serverRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "restarts_total",
			Help:      "Restarts of the HTTP startup sequence after fatal errors.",
		},
	)

	serverReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "ready",
			Help:      "1 when the main listener is serving the application.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		httpTimeouts,
		panics,
		dbConnected,
		dbConnectAttempts,
		dbReconnects,
		dbOperationRetries,
		serverRestarts,
		serverReady,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics collection. Paths are
// reported by their mux route template when one matched.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordRequestTimeout counts a request cut off by the request timeout.
func RecordRequestTimeout() {
	httpTimeouts.Inc()
}

// RecordPanic counts a recovered panic.
func RecordPanic(component string) {
	if component == "" {
		component = "unknown"
	}
	panics.WithLabelValues(component).Inc()
}

// SetDatabaseConnected publishes the connection state.
func SetDatabaseConnected(connected bool) {
	dbConnected.Set(boolToFloat(connected))
}

// RecordConnectAttempt counts a single connection attempt.
func RecordConnectAttempt(success bool) {
	dbConnectAttempts.WithLabelValues(result(success)).Inc()
}

// RecordReconnect counts a completed reconnect sequence.
func RecordReconnect(success bool) {
	dbReconnects.WithLabelValues(result(success)).Inc()
}

// RecordOperationRetry counts a store operation retried after reconnecting.
func RecordOperationRetry(operation string) {
	dbOperationRetries.WithLabelValues(operation).Inc()
}

// RecordRestart counts a supervisor restart.
func RecordRestart() {
	serverRestarts.Inc()
}

// SetServerReady publishes the supervisor readiness.
func SetServerReady(ready bool) {
	serverReady.Set(boolToFloat(ready))
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func canonicalPath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}

	trimmed := strings.Trim(r.URL.Path, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "api" && len(parts) > 1 {
		return "/api/" + parts[1]
	}
	return "/" + parts[0]
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
