// Package httpapi exposes the LMS JSON API.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/aetherlms/lms-server/internal/app/services/courses"
	"github.com/aetherlms/lms-server/internal/app/services/enrollments"
	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/database"
	svcerrors "github.com/aetherlms/lms-server/internal/errors"
	"github.com/aetherlms/lms-server/internal/httputil"
	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/metrics"
	"github.com/aetherlms/lms-server/internal/middleware"
)

const maxBodyBytes = 1 << 20

// Dependencies are the collaborators the handlers call.
type Dependencies struct {
	Courses     *courses.Service
	Enrollments *enrollments.Service
	Database    database.Supervisor
	// Pinger measures database latency for diagnostics. Optional.
	Pinger    database.Pinger
	Config    *config.Config
	Logger    *logging.Logger
	StartedAt time.Time
	// AuditSink persists audit entries. Optional.
	AuditSink AuditSink
}

type handler struct {
	deps  Dependencies
	log   *logging.Logger
	audit *auditLog
}

// NewRouter registers the API routes. Requests are instrumented with the
// route template as metrics label.
func NewRouter(deps Dependencies) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = logging.NewDefault("httpapi")
	}
	if deps.Config == nil {
		deps.Config = &config.Config{}
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	if deps.Database == nil {
		deps.Database = database.OfflineSupervisor{}
	}

	h := &handler{
		deps:  deps,
		log:   deps.Logger,
		audit: newAuditLog(200, deps.AuditSink),
	}

	r := mux.NewRouter()
	r.Use(middleware.Metrics)
	r.Use(h.auditMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/courses", h.listCourses).Methods(http.MethodGet)
	api.HandleFunc("/courses/{id}", h.getCourse).Methods(http.MethodGet)
	api.Handle("/enrollments", middleware.RequireUserID(http.HandlerFunc(h.listEnrollments))).Methods(http.MethodGet)
	api.Handle("/enrollments", middleware.RequireUserID(http.HandlerFunc(h.enroll))).Methods(http.MethodPost)
	api.Handle("/workspaces", middleware.RequireUserID(http.HandlerFunc(h.listWorkspaces))).Methods(http.MethodGet)
	api.HandleFunc("/database-check", h.databaseCheck).Methods(http.MethodGet)
	api.HandleFunc("/database-check", h.databaseReconnect).Methods(http.MethodPost)
	api.HandleFunc("/debug", h.debug).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteServiceError(w, r, svcerrors.NotFound("route"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	return r
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

// writeError renders err for the client. Lost database connections become a
// 503 with Retry-After; other unexpected errors a generic 500.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if se := svcerrors.GetServiceError(err); se != nil {
		httputil.WriteServiceError(w, r, se)
		return
	}

	entry := h.log.WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path)
	if database.IsConnectionError(err) {
		entry.Warn("database unavailable")
		w.Header().Set("Retry-After", strconv.Itoa(5))
		httputil.WriteServiceError(w, r, svcerrors.Unavailable("", err))
		return
	}

	entry.Error("request failed")
	httputil.WriteServiceError(w, r, svcerrors.Internal("", err))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, svcerrors.BadRequest(key + " must be an integer")
	}
	return v, nil
}
