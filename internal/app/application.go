package app

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aetherlms/lms-server/internal/app/httpapi"
	"github.com/aetherlms/lms-server/internal/app/services/courses"
	"github.com/aetherlms/lms-server/internal/app/services/enrollments"
	"github.com/aetherlms/lms-server/internal/app/system"
	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/database"
	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/middleware"
)

// Application ties the LMS services together and manages their lifecycle.
// The process supervisor calls Prepare before serving and Shutdown before a
// restart or exit; the pair may run several times in one process.
type Application struct {
	cfg       *config.Config
	log       *logging.Logger
	db        *database.Database
	manager   *system.Manager
	limiter   *middleware.RateLimiter
	routes    *config.RoutesConfig
	publicKey *rsa.PublicKey
	startedAt time.Time

	Courses     *courses.Service
	Enrollments *enrollments.Service

	mu        sync.Mutex
	auditSink *httpapi.FileAuditSink
}

// New builds the application from cfg. The database is not contacted until
// Prepare.
func New(cfg *config.Config, log *logging.Logger) (*Application, error) {
	return NewWithDatabase(cfg, log, nil)
}

// NewWithDatabase is New with an explicit database bundle. A nil bundle is
// built from cfg.
func NewWithDatabase(cfg *config.Config, log *logging.Logger, db *database.Database) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logging.NewDefault("app")
	}
	if db == nil {
		db = database.New(cfg, log)
	}

	publicKey, err := middleware.ParsePublicKey(cfg.Auth.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	if publicKey == nil {
		log.Warn("AUTH_JWT_PUBLIC_KEY not set; protected routes will reject every request")
	}

	routes, err := config.LoadRoutesConfig(cfg.HTTP.RoutesConfig)
	if err != nil {
		return nil, fmt.Errorf("load route policy: %w", err)
	}

	manager := system.NewManager()
	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst, log)

	services := []system.Service{limiter}
	if db.Monitor != nil {
		services = append(services, db.Monitor)
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		cfg:         cfg,
		log:         log,
		db:          db,
		manager:     manager,
		limiter:     limiter,
		routes:      routes,
		publicKey:   publicKey,
		startedAt:   time.Now(),
		Courses:     courses.New(db.Store, log),
		Enrollments: enrollments.New(db.Store, db.Store, db.Store, log),
	}, nil
}

// Database returns the connection supervisor.
func (a *Application) Database() database.Supervisor {
	return a.db.Supervisor
}

// Prepare connects to the database, starts background services and returns
// the API handler. A failed initial connection is not fatal: the handler
// serves 503s for data routes and the monitor keeps reconnecting.
func (a *Application) Prepare(ctx context.Context) (http.Handler, error) {
	if !a.db.Connect(ctx) {
		a.log.WithError(a.db.Supervisor.LastError()).Warn("starting without a database connection")
	}

	if err := a.manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("start services: %w", err)
	}

	sink, err := httpapi.NewFileAuditSink(a.cfg.HTTP.AuditLogPath)
	if err != nil {
		_ = a.manager.Stop(ctx)
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a.mu.Lock()
	a.auditSink = sink
	a.mu.Unlock()

	deps := httpapi.Dependencies{
		Courses:     a.Courses,
		Enrollments: a.Enrollments,
		Database:    a.db.Supervisor,
		Pinger:      a.db.Store,
		Config:      a.cfg,
		Logger:      a.log,
		StartedAt:   a.startedAt,
	}
	if sink != nil {
		deps.AuditSink = sink
	}
	router := httpapi.NewRouter(deps)

	var handler http.Handler = router
	handler = middleware.NoCacheDynamic(a.routes)(handler)
	handler = a.limiter.Handler(handler)
	handler = middleware.NewAuthMiddleware(a.publicKey, a.log, a.routes).Handler(handler)
	handler = middleware.NewCORSMiddleware(a.cfg.HTTP.AllowedOrigins).Handler(handler)
	// In production the server's request logger already records every
	// request.
	handler = middleware.NewTracingMiddleware(a.log, !a.cfg.IsProduction()).Handler(handler)

	a.log.WithField("services", a.manager.Names()).Info("application prepared")
	return handler, nil
}

// Shutdown stops background services and releases the database.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.manager.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	a.mu.Lock()
	sink := a.auditSink
	a.auditSink = nil
	a.mu.Unlock()
	if err := sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit log: %w", err))
	}
	return errors.Join(errs...)
}
