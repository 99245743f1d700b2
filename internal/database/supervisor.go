// Package database supervises the connection to the primary database. It
// owns the connection state, retries failed connects with a fixed delay and
// deduplicates concurrent reconnects. Offline and build deployments use a
// stub supervisor that never touches a backend.
package database

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/metrics"
)

const (
	ModeLive    = "live"
	ModeOffline = "offline"

	defaultRetryDelay = time.Second
)

// State is a point-in-time view of the connection.
type State struct {
	Connected  bool
	LastError  error
	RetryCount int
}

// Connector opens and closes the underlying handle.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Supervisor reports and repairs the database connection.
type Supervisor interface {
	Connect(ctx context.Context) bool
	Reconnect(ctx context.Context) bool
	IsConnected() bool
	LastError() error
	State() State
	Mode() string
	Close() error
}

// Options configures a LiveSupervisor.
type Options struct {
	RetryCount int
	RetryDelay time.Duration
	Logger     *logging.Logger
}

// LiveSupervisor drives a real Connector.
type LiveSupervisor struct {
	conn  Connector
	opts  Options
	log   *logrus.Entry
	group singleflight.Group

	mu    sync.RWMutex
	state State
}

var _ Supervisor = (*LiveSupervisor)(nil)

// NewSupervisor creates a disconnected supervisor around conn. A negative
// retry count is treated as zero and a negative delay as one second.
func NewSupervisor(conn Connector, opts Options) *LiveSupervisor {
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDefault("database")
	}
	return &LiveSupervisor{
		conn: conn,
		opts: opts,
		log:  opts.Logger.Component("database"),
	}
}

// Connect makes one attempt plus up to RetryCount retries separated by the
// retry delay. It reports whether a connection was established; on failure
// the last error is kept in the state. Connect never panics on connection
// failures and stops early when ctx is done.
func (s *LiveSupervisor) Connect(ctx context.Context) bool {
	s.mu.Lock()
	s.state.RetryCount = 0
	s.mu.Unlock()

	var lastErr error
	retries := 0
	for attempt := 0; attempt <= s.opts.RetryCount; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, s.opts.RetryDelay); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				break
			}
			retries = attempt
			s.mu.Lock()
			s.state.RetryCount = retries
			s.mu.Unlock()
		}

		err := s.conn.Connect(ctx)
		metrics.RecordConnectAttempt(err == nil)
		if err == nil {
			s.setState(State{Connected: true, RetryCount: retries})
			s.log.WithField("retries", retries).Info("database connected")
			return true
		}

		lastErr = err
		s.log.WithError(err).WithFields(logrus.Fields{
			"attempt":     attempt + 1,
			"max_attempt": s.opts.RetryCount + 1,
		}).Warn("database connection attempt failed")
	}

	s.setState(State{Connected: false, LastError: lastErr, RetryCount: retries})
	s.log.WithError(lastErr).WithField("retries", retries).Error("database connection failed")
	return false
}

// Reconnect closes the current handle and runs a new connect sequence.
// Concurrent callers share the in-flight sequence and its result. The
// sequence is not cancelled when the caller that started it goes away.
func (s *LiveSupervisor) Reconnect(ctx context.Context) bool {
	ch := s.group.DoChan("reconnect", func() (interface{}, error) {
		if err := s.conn.Close(); err != nil {
			s.log.WithError(err).Warn("close before reconnect failed")
		}
		s.mu.Lock()
		s.state.Connected = false
		s.mu.Unlock()
		metrics.SetDatabaseConnected(false)

		ok := s.Connect(context.WithoutCancel(ctx))
		metrics.RecordReconnect(ok)
		return ok, nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

func (s *LiveSupervisor) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Connected
}

func (s *LiveSupervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastError
}

func (s *LiveSupervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *LiveSupervisor) Mode() string { return ModeLive }

// Close releases the handle and marks the supervisor disconnected.
func (s *LiveSupervisor) Close() error {
	err := s.conn.Close()
	s.mu.Lock()
	s.state.Connected = false
	s.mu.Unlock()
	metrics.SetDatabaseConnected(false)
	return err
}

func (s *LiveSupervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	metrics.SetDatabaseConnected(st.Connected)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
