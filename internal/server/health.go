package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aetherlms/lms-server/internal/httputil"
	"github.com/aetherlms/lms-server/internal/middleware"
)

// HealthPath is answered by both the health stub and the main listener.
const HealthPath = "/api/healthcheck"

const startingRetryAfter = "5"

// Health is the health endpoint payload.
type Health struct {
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	Phase         Phase           `json:"phase"`
	Ready         bool            `json:"ready"`
	Restarts      int             `json:"restarts"`
	Uptime        string          `json:"uptime"`
	UptimeSeconds float64         `json:"uptimeSeconds"`
	Database      *DatabaseHealth `json:"database,omitempty"`
}

// DatabaseHealth summarizes the connection supervisor.
type DatabaseHealth struct {
	Connected  bool   `json:"connected"`
	Mode       string `json:"mode"`
	RetryCount int    `json:"retryCount"`
	Error      string `json:"error,omitempty"`
}

// Snapshot returns the current health.
func (s *Supervisor) Snapshot() Health {
	s.mu.RLock()
	phase, ready, restarts := s.phase, s.ready, s.restarts
	s.mu.RUnlock()

	status := "initializing"
	switch {
	case ready:
		status = "ok"
	case phase == PhaseShuttingDown || phase == PhaseTerminated:
		status = "shutting-down"
	}

	uptime := time.Since(s.startedAt)
	h := Health{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Phase:         phase,
		Ready:         ready,
		Restarts:      restarts,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
	}

	if db := s.opts.Database; db != nil {
		state := db.State()
		h.Database = &DatabaseHealth{
			Connected:  state.Connected,
			Mode:       db.Mode(),
			RetryCount: state.RetryCount,
		}
		if state.LastError != nil && !s.opts.Production {
			h.Database.Error = state.LastError.Error()
		}
	}
	return h
}

func (s *Supervisor) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, s.Snapshot())
}

// starting answers every non-health request while the application prepares.
func starting(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", startingRetryAfter)
	httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
		"Server is starting, please retry shortly", nil)
}

func (s *Supervisor) stubHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(HealthPath, s.health).Methods(http.MethodGet, http.MethodHead)
	r.NotFoundHandler = http.HandlerFunc(starting)
	r.MethodNotAllowedHandler = http.HandlerFunc(starting)
	return s.wrap(r)
}

func (s *Supervisor) mainHandler(app http.Handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(HealthPath, s.health).Methods(http.MethodGet, http.MethodHead)
	r.PathPrefix("/").Handler(app)
	return s.wrap(r)
}

// wrap applies, outermost first: security headers, production request
// logging, panic recovery and the request timeout.
func (s *Supervisor) wrap(h http.Handler) http.Handler {
	h = middleware.Timeout(s.opts.Config.RequestTimeout, s.log)(h)
	h = middleware.Recovery(s.log)(h)
	if s.opts.Production {
		h = middleware.RequestLogger(s.log)(h)
	}
	return middleware.SecurityHeaders(h)
}
