package database

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlms/lms-server/internal/logging"
)

type fakeConnector struct {
	mu       sync.Mutex
	failures int
	calls    int32
	closes   int32
	started  chan struct{}
	release  chan struct{}
}

func (f *fakeConnector) Connect(context.Context) error {
	n := atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("dial tcp 127.0.0.1:5432: connection refused (attempt %d)", n)
	}
	return nil
}

func (f *fakeConnector) Close() error {
	atomic.AddInt32(&f.closes, 1)
	return nil
}

func (f *fakeConnector) setFailures(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

func testLogger() *logging.Logger {
	return logging.NewFromConfig("test", logging.Config{Level: "debug", Output: io.Discard})
}

func testOptions(retries int) Options {
	return Options{RetryCount: retries, RetryDelay: time.Millisecond, Logger: testLogger()}
}

func TestSupervisor_ConnectRetriesThenSucceeds(t *testing.T) {
	for n := 0; n <= 3; n++ {
		t.Run(fmt.Sprintf("failures=%d", n), func(t *testing.T) {
			conn := &fakeConnector{failures: n}
			sup := NewSupervisor(conn, testOptions(3))

			require.True(t, sup.Connect(context.Background()))

			state := sup.State()
			assert.True(t, state.Connected)
			assert.NoError(t, state.LastError)
			assert.Equal(t, n, state.RetryCount)
			assert.Equal(t, int32(n+1), atomic.LoadInt32(&conn.calls))
		})
	}
}

func TestSupervisor_ConnectExhaustsRetries(t *testing.T) {
	conn := &fakeConnector{failures: 10}
	sup := NewSupervisor(conn, testOptions(2))

	assert.NotPanics(t, func() {
		assert.False(t, sup.Connect(context.Background()))
	})

	state := sup.State()
	assert.False(t, state.Connected)
	assert.False(t, sup.IsConnected())
	require.Error(t, state.LastError)
	assert.Contains(t, state.LastError.Error(), "attempt 3")
	assert.Equal(t, sup.LastError(), state.LastError)
	assert.Equal(t, 2, state.RetryCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(&conn.calls))
}

func TestSupervisor_ConnectStopsOnCancelledContext(t *testing.T) {
	conn := &fakeConnector{failures: 10}
	sup := NewSupervisor(conn, Options{RetryCount: 5, RetryDelay: time.Hour, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, sup.Connect(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.calls))
	assert.Error(t, sup.LastError())
}

func TestSupervisor_NegativeRetryCount(t *testing.T) {
	conn := &fakeConnector{failures: 1}
	sup := NewSupervisor(conn, testOptions(-1))

	assert.False(t, sup.Connect(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.calls))
}

func TestSupervisor_RetryCountResetsPerSequence(t *testing.T) {
	conn := &fakeConnector{failures: 2}
	sup := NewSupervisor(conn, testOptions(3))

	require.True(t, sup.Connect(context.Background()))
	assert.Equal(t, 2, sup.State().RetryCount)

	require.True(t, sup.Reconnect(context.Background()))
	assert.Equal(t, 0, sup.State().RetryCount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.closes))
}

func TestSupervisor_ConcurrentReconnectSharesOneSequence(t *testing.T) {
	conn := &fakeConnector{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	sup := NewSupervisor(conn, testOptions(0))

	results := make(chan bool, 2)
	go func() { results <- sup.Reconnect(context.Background()) }()
	<-conn.started

	go func() { results <- sup.Reconnect(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(conn.release)

	assert.True(t, <-results)
	assert.True(t, <-results)
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.closes))
	assert.True(t, sup.IsConnected())
}

func TestSupervisor_ReconnectFailureKeepsError(t *testing.T) {
	conn := &fakeConnector{}
	sup := NewSupervisor(conn, testOptions(1))
	require.True(t, sup.Connect(context.Background()))

	conn.setFailures(5)
	assert.False(t, sup.Reconnect(context.Background()))
	assert.False(t, sup.IsConnected())
	assert.Error(t, sup.LastError())
}

func TestSupervisor_Close(t *testing.T) {
	conn := &fakeConnector{}
	sup := NewSupervisor(conn, testOptions(0))
	require.True(t, sup.Connect(context.Background()))

	require.NoError(t, sup.Close())
	assert.False(t, sup.IsConnected())
	assert.Equal(t, ModeLive, sup.Mode())
}

func TestOfflineSupervisor(t *testing.T) {
	var sup Supervisor = OfflineSupervisor{}

	assert.True(t, sup.Connect(context.Background()))
	assert.True(t, sup.Reconnect(context.Background()))
	assert.True(t, sup.IsConnected())
	assert.NoError(t, sup.LastError())
	assert.Equal(t, State{Connected: true}, sup.State())
	assert.Equal(t, ModeOffline, sup.Mode())
	assert.NoError(t, sup.Close())
}
