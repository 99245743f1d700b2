package database

import "context"

// OfflineSupervisor stands in for the live supervisor in build and offline
// deployments. It always reports a healthy connection.
type OfflineSupervisor struct{}

var _ Supervisor = OfflineSupervisor{}

func (OfflineSupervisor) Connect(context.Context) bool { return true }
func (OfflineSupervisor) Reconnect(context.Context) bool { return true }
func (OfflineSupervisor) IsConnected() bool { return true }
func (OfflineSupervisor) LastError() error { return nil }
func (OfflineSupervisor) State() State { return State{Connected: true} }
func (OfflineSupervisor) Mode() string { return ModeOffline }
func (OfflineSupervisor) Close() error { return nil }
