package database

import (
	"context"

	"github.com/aetherlms/lms-server/internal/app/storage"
	"github.com/aetherlms/lms-server/internal/app/storage/offline"
	"github.com/aetherlms/lms-server/internal/app/storage/postgres"
	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/logging"
)

// Database bundles the supervisor with the store callers should use. The
// mode is fixed when the bundle is built: Supervisor is the single source of
// connection status for the process.
type Database struct {
	Supervisor Supervisor
	Store      storage.Store
	// Monitor is nil in offline mode.
	Monitor *Monitor
}

// New builds the live or offline database bundle from cfg. The live bundle
// is not connected yet; call Connect.
func New(cfg *config.Config, log *logging.Logger) *Database {
	if cfg.OfflineMode() {
		if log != nil {
			log.Component("database").Warn("offline mode: database access is stubbed")
		}
		return &Database{
			Supervisor: OfflineSupervisor{},
			Store:      offline.New(),
		}
	}

	pg := postgres.New(postgres.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Migrate:         cfg.Database.Migrate,
	})
	return NewLive(pg, Options{
		RetryCount: cfg.Database.RetryCount,
		RetryDelay: cfg.Database.RetryDelay(),
		Logger:     log,
	}, cfg.Database.MonitorSchedule)
}

// LiveBackend is a store that also manages its own connection.
type LiveBackend interface {
	storage.Store
	Connector
}

// NewLive wires a supervisor, resilient store and monitor around backend.
func NewLive(backend LiveBackend, opts Options, schedule string) *Database {
	sup := NewSupervisor(backend, opts)
	return &Database{
		Supervisor: sup,
		Store:      NewResilientStore(backend, sup, opts.Logger),
		Monitor:    NewMonitor(sup, backend, schedule, opts.Logger),
	}
}

// Connect runs the initial connect sequence.
func (d *Database) Connect(ctx context.Context) bool {
	return d.Supervisor.Connect(ctx)
}

// Close releases the connection.
func (d *Database) Close() error {
	return d.Supervisor.Close()
}
