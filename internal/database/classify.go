package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"

	"github.com/aetherlms/lms-server/internal/app/storage"
)

var connectionMessages = []string{
	"terminating connection",
	"connection reset",
	"econnreset",
	"connection refused",
	"broken pipe",
	"bad connection",
	"database is closed",
	"server closed the connection unexpectedly",
}

// IsConnectionError reports whether err means the connection itself is
// unusable, as opposed to a failed query. Cancelled or expired contexts are
// never connection errors.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, storage.ErrNotConnected),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isConnectionSQLState(string(pqErr.Code))
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range connectionMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// isConnectionSQLState matches class 08 (connection exception) and the
// admin/crash shutdown codes sent when the server drops sessions.
func isConnectionSQLState(code string) bool {
	if strings.HasPrefix(code, "08") {
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03":
		return true
	}
	return false
}
