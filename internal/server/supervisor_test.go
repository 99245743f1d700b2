package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/database"
	"github.com/aetherlms/lms-server/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewFromConfig("test", logging.Config{Output: io.Discard})
}

func testOptions() Options {
	return Options{
		Config: config.ServerConfig{
			Host:             "127.0.0.1",
			Port:             0,
			RequestTimeout:   time.Second,
			ShutdownTimeout:  2 * time.Second,
			MaxRestarts:      2,
			RestartDelay:     time.Millisecond,
			EarlyHealthcheck: true,
		},
		Logger:  testLogger(),
		Signals: []os.Signal{},
		Exit:    func(int) {},
	}
}

// fakeApp serves a fixed handler. prepare, when set, runs before Prepare
// returns and may fail or block.
type fakeApp struct {
	handler  http.Handler
	prepare  func(call int) error
	prepares atomic.Int32
	shutdown atomic.Int32
}

func (a *fakeApp) Prepare(ctx context.Context) (http.Handler, error) {
	n := int(a.prepares.Add(1))
	if a.prepare != nil {
		if err := a.prepare(n); err != nil {
			return nil, err
		}
	}
	h := a.handler
	if h == nil {
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "app")
		})
	}
	return h, nil
}

func (a *fakeApp) Shutdown(context.Context) error {
	a.shutdown.Add(1)
	return nil
}

var testClient = &http.Client{
	Timeout:   2 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

func runAsync(ctx context.Context, s *Supervisor) <-chan int {
	done := make(chan int, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitAddr(t *testing.T, s *Supervisor) string {
	t.Helper()
	var addr string
	require.Eventually(t, func() bool {
		addr = s.Addr()
		return addr != ""
	}, 2*time.Second, 5*time.Millisecond)
	return addr
}

func getHealth(addr string) (Health, error) {
	resp, err := testClient.Get("http://" + addr + HealthPath)
	if err != nil {
		return Health{}, err
	}
	defer resp.Body.Close()
	var h Health
	err = json.NewDecoder(resp.Body).Decode(&h)
	return h, err
}

func waitExit(t *testing.T, done <-chan int) int {
	t.Helper()
	select {
	case code := <-done:
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not exit")
		return -1
	}
}

func TestRun_HealthInitializingThenOK(t *testing.T) {
	release := make(chan struct{})
	app := &fakeApp{prepare: func(int) error {
		<-release
		return nil
	}}
	s := New(app, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, s)
	addr := waitAddr(t, s)
	require.Eventually(t, func() bool { return s.Phase() == PhasePreparing }, 2*time.Second, 5*time.Millisecond)

	h, err := getHealth(addr)
	require.NoError(t, err)
	assert.Equal(t, "initializing", h.Status)
	assert.Equal(t, PhasePreparing, h.Phase)
	assert.False(t, h.Ready)

	resp, err := testClient.Get("http://" + addr + "/api/courses")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	close(release)
	require.Eventually(t, func() bool {
		h, err := getHealth(addr)
		return err == nil && h.Status == "ok"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, addr, s.Addr())

	resp, err = testClient.Get("http://" + addr + "/anything")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "app", string(body))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	cancel()
	assert.Equal(t, 0, waitExit(t, done))
	assert.Equal(t, int32(1), app.shutdown.Load())
	assert.Equal(t, PhaseTerminated, s.Phase())
	assert.False(t, s.Ready())
}

func TestRun_ExhaustedRestartsExitOne(t *testing.T) {
	app := &fakeApp{prepare: func(int) error { return errors.New("migrations failed") }}
	opts := testOptions()
	opts.Config.EarlyHealthcheck = false
	s := New(app, opts)

	code := s.Run(context.Background())

	assert.Equal(t, 1, code)
	assert.Equal(t, 2, s.Restarts())
	assert.Equal(t, int32(3), app.prepares.Load())
	assert.Equal(t, int32(3), app.shutdown.Load())
}

func TestRun_NoRestartsAllowed(t *testing.T) {
	app := &fakeApp{}
	opts := testOptions()
	opts.Config.MaxRestarts = 0
	opts.Listen = func(string, string) (net.Listener, error) {
		return nil, errors.New("address already in use")
	}
	s := New(app, opts)

	assert.Equal(t, 1, s.Run(context.Background()))
	assert.Equal(t, 0, s.Restarts())
	assert.Equal(t, int32(0), app.prepares.Load())
}

func TestRun_RecoversAfterRestart(t *testing.T) {
	app := &fakeApp{prepare: func(call int) error {
		if call == 1 {
			return errors.New("transient")
		}
		return nil
	}}
	s := New(app, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, s)

	require.Eventually(t, s.Ready, 2*time.Second, 5*time.Millisecond)
	h, err := getHealth(s.Addr())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Restarts)

	cancel()
	assert.Equal(t, 0, waitExit(t, done))
	assert.Equal(t, int32(2), app.shutdown.Load())
}

func TestRun_InstantPrepareTakesOverStubAddress(t *testing.T) {
	for i := 0; i < 20; i++ {
		app := &fakeApp{}
		opts := testOptions()
		opts.Config.MaxRestarts = 0
		s := New(app, opts)

		ctx, cancel := context.WithCancel(context.Background())
		done := runAsync(ctx, s)

		select {
		case code := <-done:
			cancel()
			t.Fatalf("run %d exited early with code %d", i, code)
		case <-waitReady(s):
		}
		require.True(t, s.Ready(), "run %d never became ready", i)
		assert.Equal(t, 0, s.Restarts())

		cancel()
		require.Equal(t, 0, waitExit(t, done))
	}
}

func waitReady(s *Supervisor) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		deadline := time.Now().Add(2 * time.Second)
		for !s.Ready() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
	}()
	return ch
}

func TestRun_PanicDuringPrepareExitsOne(t *testing.T) {
	app := &fakeApp{prepare: func(int) error { panic("nil config") }}
	s := New(app, testOptions())

	assert.Equal(t, 1, s.Run(context.Background()))
	assert.Equal(t, 0, s.Restarts())
	assert.Equal(t, int32(1), app.shutdown.Load())
}

func TestRun_GracefulShutdownDrainsInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	app := &fakeApp{handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		_, _ = io.WriteString(w, "done")
	})}
	opts := testOptions()
	opts.Config.EarlyHealthcheck = false
	s := New(app, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, s)
	require.Eventually(t, s.Ready, 2*time.Second, 5*time.Millisecond)
	addr := s.Addr()

	var (
		wg     sync.WaitGroup
		status int
		body   string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := testClient.Get("http://" + addr + "/slow")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		status, body = resp.StatusCode, string(b)
	}()

	<-started
	cancel()
	require.Eventually(t, func() bool { return s.Phase() == PhaseShuttingDown }, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "done", body)
	assert.Equal(t, 0, waitExit(t, done))
}

func TestMainHandler_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	lateErr := make(chan error, 1)
	app := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, err := w.Write([]byte("late"))
		lateErr <- err
	})
	opts := testOptions()
	opts.Config.RequestTimeout = 20 * time.Millisecond
	s := New(&fakeApp{}, opts)

	rec := httptest.NewRecorder()
	s.mainHandler(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/courses", nil))
	close(release)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.ErrorIs(t, <-lateErr, http.ErrHandlerTimeout)
	assert.NotContains(t, rec.Body.String(), "late")
}

func TestMainHandler_PanicBecomes500(t *testing.T) {
	app := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret detail")
	})
	s := New(&fakeApp{}, testOptions())

	rec := httptest.NewRecorder()
	s.mainHandler(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/courses", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestSnapshot_ReportsDatabase(t *testing.T) {
	opts := testOptions()
	opts.Database = database.OfflineSupervisor{}
	s := New(&fakeApp{}, opts)

	h := s.Snapshot()
	assert.Equal(t, "initializing", h.Status)
	assert.Equal(t, PhaseStarting, h.Phase)
	require.NotNil(t, h.Database)
	assert.True(t, h.Database.Connected)
	assert.Equal(t, database.ModeOffline, h.Database.Mode)
}
