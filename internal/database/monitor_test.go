package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSupervisor struct {
	OfflineSupervisor
	connected  bool
	reconnects int
	reconnOK   bool
}

func (s *stubSupervisor) IsConnected() bool { return s.connected }
func (s *stubSupervisor) Reconnect(context.Context) bool {
	s.reconnects++
	s.connected = s.reconnOK
	return s.reconnOK
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestMonitor_Check(t *testing.T) {
	tests := []struct {
		name          string
		connected     bool
		pingErr       error
		wantHealthy   bool
		wantReconnect int
	}{
		{"healthy", true, nil, true, 0},
		{"disconnected", false, nil, true, 1},
		{"connection lost", true, errors.New("connection refused"), true, 1},
		{"query error", true, errors.New("permission denied"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := &stubSupervisor{connected: tt.connected, reconnOK: true}
			m := NewMonitor(sup, pingFunc(func(context.Context) error { return tt.pingErr }), "@every 1m", testLogger())

			assert.Equal(t, tt.wantHealthy, m.Check(context.Background()))
			assert.Equal(t, tt.wantReconnect, sup.reconnects)
		})
	}
}

func TestMonitor_StartStop(t *testing.T) {
	sup := &stubSupervisor{connected: true}
	m := NewMonitor(sup, pingFunc(func(context.Context) error { return nil }), "@every 1h", testLogger())
	assert.Equal(t, "database-monitor", m.Name())

	require.NoError(t, m.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.Stop(ctx))
	assert.NoError(t, m.Stop(ctx))
}

func TestMonitor_DisabledAndInvalidSchedule(t *testing.T) {
	sup := &stubSupervisor{connected: true}
	ping := pingFunc(func(context.Context) error { return nil })

	assert.NoError(t, NewMonitor(sup, ping, "", testLogger()).Start(context.Background()))
	assert.Error(t, NewMonitor(sup, ping, "every now and then", testLogger()).Start(context.Background()))
}

func TestMonitor_RunRecoversPanic(t *testing.T) {
	sup := &stubSupervisor{connected: true}
	m := NewMonitor(sup, pingFunc(func(context.Context) error { panic("driver bug") }), "@every 1h", testLogger())

	assert.NotPanics(t, m.run)
}
