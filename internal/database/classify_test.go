package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/aetherlms/lms-server/internal/app/storage"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"conn done", fmt.Errorf("query: %w", sql.ErrConnDone), true},
		{"not connected", storage.ErrNotConnected, true},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"econnrefused", syscall.ECONNREFUSED, true},
		{"epipe", syscall.EPIPE, true},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")}, true},
		{"pq connection class", &pq.Error{Code: "08006", Message: "connection failure"}, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"}, true},
		{"pq cannot connect now", &pq.Error{Code: "57P03"}, true},
		{"pq undefined table", &pq.Error{Code: "42P01", Message: "relation \"courses\" does not exist"}, false},
		{"pq unique violation", &pq.Error{Code: "23505"}, false},
		{"message pattern", errors.New("read tcp: Connection reset by peer"), true},
		{"closed pool", errors.New("sql: database is closed"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"not found", storage.ErrNotFound, false},
		{"plain", errors.New("syntax error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}
