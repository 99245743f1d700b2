// Package runtime contains panic boundaries for goroutines owned by the
// server.
//
// Two policies exist. Guard runs work synchronously and turns a panic into a
// *PanicError the caller must act on; the process supervisor shuts down with
// a non-zero exit code when it sees one. SafeGo runs background work whose
// panics are logged and swallowed so the process stays alive.
package runtime

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/metrics"
)

// PanicError describes a recovered panic.
type PanicError struct {
	Component string
	Value     interface{}
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Component, e.Value)
}

// IsPanic reports whether err carries a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// Guard runs fn and converts a panic into a *PanicError. The panic is logged
// with its stack.
func Guard(log *logging.Logger, component string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Component: component, Value: r, Stack: debug.Stack()}
			logPanic(log, pe, "uncaught panic")
			err = pe
		}
	}()
	return fn()
}

// SafeGo runs fn in a new goroutine. A panic is logged and dropped.
func SafeGo(log *logging.Logger, component string, fn func()) {
	go func() {
		defer RecoverAndLog(log, component)
		fn()
	}()
}

// RecoverAndLog must be deferred. It recovers a panic, logs it and lets the
// goroutine end normally.
func RecoverAndLog(log *logging.Logger, component string) {
	if r := recover(); r != nil {
		logPanic(log, &PanicError{Component: component, Value: r, Stack: debug.Stack()}, "unhandled panic in background work")
	}
}

func logPanic(log *logging.Logger, pe *PanicError, msg string) {
	metrics.RecordPanic(pe.Component)
	if log == nil {
		return
	}
	log.Component(pe.Component).WithFields(logrus.Fields{
		"panic": fmt.Sprint(pe.Value),
		"stack": string(pe.Stack),
	}).Error(msg)
}
