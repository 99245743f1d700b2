package database

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/runtime"
)

const monitorPingTimeout = 5 * time.Second

// Pinger checks a backend without repairing it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor periodically probes the database and reconnects when the probe
// shows the connection is gone.
type Monitor struct {
	sup      Supervisor
	pinger   Pinger
	schedule string
	logger   *logging.Logger
	log      *logrus.Entry

	cron *cron.Cron
}

// NewMonitor creates a monitor running on a cron schedule such as
// "@every 30s". An empty schedule disables it.
func NewMonitor(sup Supervisor, pinger Pinger, schedule string, log *logging.Logger) *Monitor {
	if log == nil {
		log = logging.NewDefault("database")
	}
	return &Monitor{
		sup:      sup,
		pinger:   pinger,
		schedule: schedule,
		logger:   log,
		log:      log.Component("database-monitor"),
	}
}

func (m *Monitor) Name() string { return "database-monitor" }

func (m *Monitor) Start(ctx context.Context) error {
	if m.schedule == "" {
		m.log.Info("database monitor disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(m.schedule, m.run); err != nil {
		return fmt.Errorf("schedule database monitor %q: %w", m.schedule, err)
	}
	c.Start()
	m.cron = c
	m.log.WithField("schedule", m.schedule).Info("database monitor started")
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	if m.cron == nil {
		return nil
	}
	done := m.cron.Stop()
	m.cron = nil
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) run() {
	defer runtime.RecoverAndLog(m.logger, "database-monitor")

	ctx, cancel := context.WithTimeout(context.Background(), monitorPingTimeout)
	defer cancel()
	m.Check(ctx)
}

// Check probes the connection once and reconnects if needed. It reports
// whether the connection is healthy afterwards.
func (m *Monitor) Check(ctx context.Context) bool {
	if !m.sup.IsConnected() {
		m.log.Warn("database disconnected, reconnecting")
		return m.sup.Reconnect(ctx)
	}

	err := m.pinger.Ping(ctx)
	if err == nil {
		return true
	}
	if !IsConnectionError(err) {
		m.log.WithError(err).Warn("database ping failed")
		return false
	}

	m.log.WithError(err).Warn("database ping lost connection, reconnecting")
	return m.sup.Reconnect(ctx)
}
