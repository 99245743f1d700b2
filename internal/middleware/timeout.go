package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	svcerrors "github.com/aetherlms/lms-server/internal/errors"
	internalhttputil "github.com/aetherlms/lms-server/internal/httputil"
	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/metrics"
)

// Timeout bounds each request to d. The handler runs against a buffered
// writer; if it has not finished in time the client receives a 504 and any
// later write by the handler fails with http.ErrHandlerTimeout.
func Timeout(d time.Duration, logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			r = r.WithContext(ctx)

			done := make(chan struct{})
			panicked := make(chan interface{}, 1)
			tw := &timeoutWriter{w: w, h: make(http.Header)}

			go func() {
				defer func() {
					if p := recover(); p != nil {
						if p == http.ErrAbortHandler {
							panicked <- p
							return
						}
						panicked <- handlerPanic{value: p, stack: debug.Stack()}
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case p := <-panicked:
				panic(p)
			case <-done:
				tw.flush()
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				tw.timedOut = true

				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return
				}
				metrics.RecordRequestTimeout()
				if logger != nil {
					logger.WithContext(ctx).WithFields(map[string]interface{}{
						"method":  r.Method,
						"path":    r.URL.Path,
						"timeout": d.String(),
					}).Warn("request timed out")
				}
				internalhttputil.WriteServiceError(w, r, svcerrors.Timeout())
			}
		})
	}
}

type handlerPanic struct {
	value interface{}
	stack []byte
}

func (p handlerPanic) String() string {
	return fmt.Sprintf("%v\n%s", p.value, p.stack)
}

type timeoutWriter struct {
	w  http.ResponseWriter
	h  http.Header
	mu sync.Mutex

	buf         bytes.Buffer
	code        int
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.h }

func (tw *timeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.buf.Write(p)
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	if tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	tw.code = code
}

func (tw *timeoutWriter) flush() {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	dst := tw.w.Header()
	for k, v := range tw.h {
		dst[k] = v
	}
	if !tw.wroteHeader {
		tw.code = http.StatusOK
	}
	tw.w.WriteHeader(tw.code)
	_, _ = tw.w.Write(tw.buf.Bytes())
}
