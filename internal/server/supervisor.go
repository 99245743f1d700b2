// Package server runs the HTTP listener lifecycle: an early health stub
// while the application prepares, the main listener once it is ready,
// bounded restarts after fatal errors and graceful shutdown on signals.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/database"
	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/metrics"
	"github.com/aetherlms/lms-server/internal/runtime"
)

// Phase is a step of the server lifecycle.
type Phase string

const (
	PhaseStarting     Phase = "starting"
	PhaseHealthStub   Phase = "health-stub-listening"
	PhasePreparing    Phase = "preparing-app"
	PhaseReady        Phase = "ready"
	PhaseRestarting   Phase = "restarting"
	PhaseShuttingDown Phase = "shutting-down"
	PhaseTerminated   Phase = "terminated"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	forceExitGrace    = 2 * time.Second
)

// App is the application served behind the supervisor. Prepare and Shutdown
// are called once per startup attempt.
type App interface {
	Prepare(ctx context.Context) (http.Handler, error)
	Shutdown(ctx context.Context) error
}

// ListenFunc binds a listener.
type ListenFunc func(network, address string) (net.Listener, error)

// Options configure a Supervisor.
type Options struct {
	Config     config.ServerConfig
	Production bool
	Logger     *logging.Logger
	// Database is reported by the health endpoint when set.
	Database database.Supervisor

	// Listen defaults to net.Listen.
	Listen ListenFunc
	// Exit is called when shutdown overruns its bound. Defaults to os.Exit.
	Exit func(code int)
	// Signals start a graceful shutdown. Nil means SIGINT and SIGTERM; an
	// empty slice disables signal handling.
	Signals []os.Signal
}

// Supervisor owns the listener lifecycle.
type Supervisor struct {
	app    App
	opts   Options
	log    *logging.Logger
	listen ListenFunc
	exit   func(int)

	startedAt time.Time

	mu       sync.RWMutex
	phase    Phase
	ready    bool
	restarts int
	addr     string
}

// New creates a supervisor for app.
func New(app App, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = logging.NewDefault("server")
	}
	if opts.Listen == nil {
		opts.Listen = net.Listen
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Signals == nil {
		opts.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &Supervisor{
		app:       app,
		opts:      opts,
		log:       opts.Logger,
		listen:    opts.Listen,
		exit:      opts.Exit,
		startedAt: time.Now(),
		phase:     PhaseStarting,
	}
}

// Run starts the server and blocks until it terminates. The returned value
// is the process exit code: 0 after a graceful shutdown, 1 when restarts
// are exhausted or a panic escaped the startup or serving path.
func (s *Supervisor) Run(ctx context.Context) int {
	if len(s.opts.Signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, s.opts.Signals...)
		defer stop()
	}

	disarm := s.armForceExit(ctx, 0)
	defer disarm()
	defer s.setPhase(PhaseTerminated)

	for {
		s.setPhase(PhaseStarting)
		err := runtime.Guard(s.log, "server", func() error {
			return s.serveOnce(ctx)
		})

		switch {
		case err == nil:
			s.log.Info("server stopped")
			return 0
		case runtime.IsPanic(err):
			s.log.WithError(err).Error("shutting down after panic")
			return 1
		case ctx.Err() != nil:
			s.log.WithError(err).Info("startup interrupted by shutdown")
			return 0
		}

		restarts := s.Restarts()
		if restarts >= s.opts.Config.MaxRestarts {
			s.log.WithError(err).WithField("restarts", restarts).Error("restart limit reached; exiting")
			return 1
		}

		restarts = s.incRestarts()
		metrics.RecordRestart()
		s.setPhase(PhaseRestarting)
		s.log.WithError(err).WithFields(logrus.Fields{
			"restart":     restarts,
			"maxRestarts": s.opts.Config.MaxRestarts,
			"delay":       s.opts.Config.RestartDelay.String(),
		}).Warn("server failed; restarting")

		if !sleep(ctx, s.opts.Config.RestartDelay) {
			return 0
		}
	}
}

// serveOnce runs one startup sequence. It returns nil after a graceful
// shutdown and an error for anything that warrants a restart.
func (s *Supervisor) serveOnce(ctx context.Context) error {
	addr := s.opts.Config.Address()

	closeStub := func() {}
	if s.opts.Config.EarlyHealthcheck {
		ln, err := s.listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("bind health stub on %s: %w", addr, err)
		}
		addr = ln.Addr().String()
		s.setAddr(addr)

		stub := &http.Server{Handler: s.stubHandler(), ReadHeaderTimeout: readHeaderTimeout}
		runtime.SafeGo(s.log, "health-stub", func() {
			if err := stub.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.WithError(err).Warn("health stub stopped")
			}
		})
		// Serve may not have picked up ln yet, so ln is closed directly.
		var once sync.Once
		closeStub = func() {
			once.Do(func() {
				_ = stub.Close()
				_ = ln.Close()
			})
		}
		defer closeStub()

		s.setPhase(PhaseHealthStub)
		s.log.WithField("addr", addr).Info("health stub listening")
	}

	var shutdownDeadline time.Time
	defer func() {
		sctx, cancel := s.shutdownContext(shutdownDeadline)
		defer cancel()
		if err := s.app.Shutdown(sctx); err != nil {
			s.log.WithError(err).Warn("application shutdown")
		}
	}()

	s.setPhase(PhasePreparing)
	appHandler, err := s.app.Prepare(ctx)
	if err != nil {
		return fmt.Errorf("prepare application: %w", err)
	}
	closeStub()
	if ctx.Err() != nil {
		s.setPhase(PhaseShuttingDown)
		return nil
	}

	ln, err := s.listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.setAddr(ln.Addr().String())

	srv := &http.Server{
		Handler:           s.mainHandler(appHandler),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- runtime.Guard(s.log, "http-server", func() error {
			return srv.Serve(ln)
		})
	}()

	s.setReady(true)
	defer s.setReady(false)
	s.log.WithField("addr", ln.Addr().String()).Info("server ready")

	select {
	case err := <-serveErr:
		_ = srv.Close()
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.setPhase(PhaseShuttingDown)
	s.setReady(false)
	shutdownDeadline = time.Now().Add(s.opts.Config.ShutdownTimeout)
	s.log.WithField("timeout", s.opts.Config.ShutdownTimeout.String()).Info("shutting down")

	sctx, cancel := context.WithDeadline(context.Background(), shutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.log.WithError(err).Warn("graceful shutdown incomplete; closing remaining connections")
		_ = srv.Close()
	}
	if err := <-serveErr; runtime.IsPanic(err) {
		return err
	}
	return nil
}

func (s *Supervisor) shutdownContext(deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithTimeout(context.Background(), s.opts.Config.ShutdownTimeout)
	}
	return context.WithDeadline(context.Background(), deadline)
}

// armForceExit terminates the process with code if shutdown has not
// finished shortly after the shutdown bound. The returned func disarms it.
func (s *Supervisor) armForceExit(ctx context.Context, code int) func() {
	var (
		mu       sync.Mutex
		timer    *time.Timer
		disarmed bool
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if disarmed {
			return
		}
		timer = time.AfterFunc(s.opts.Config.ShutdownTimeout+forceExitGrace, func() {
			s.log.Error("shutdown did not finish in time; forcing exit")
			s.exit(code)
		})
	})
	return func() {
		stop()
		mu.Lock()
		defer mu.Unlock()
		disarmed = true
		if timer != nil {
			timer.Stop()
		}
	}
}

// Phase returns the current lifecycle phase.
func (s *Supervisor) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Ready reports whether the main listener serves the application.
func (s *Supervisor) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Restarts returns how many restarts have been consumed.
func (s *Supervisor) Restarts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restarts
}

// Addr returns the address of the current listener, or "" before binding.
func (s *Supervisor) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Supervisor) setReady(ready bool) {
	s.mu.Lock()
	s.ready = ready
	if ready {
		s.phase = PhaseReady
	}
	s.mu.Unlock()
	metrics.SetServerReady(ready)
}

func (s *Supervisor) setAddr(addr string) {
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
}

func (s *Supervisor) incRestarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts++
	return s.restarts
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
