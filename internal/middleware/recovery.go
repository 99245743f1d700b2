package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/aetherlms/lms-server/internal/errors"
	internalhttputil "github.com/aetherlms/lms-server/internal/httputil"
	"github.com/aetherlms/lms-server/internal/logging"
	"github.com/aetherlms/lms-server/internal/metrics"
)

// Recovery converts a handler panic into a generic 500. The panic value and
// stack are logged, never sent to the client. http.ErrAbortHandler is
// re-raised so net/http can abort the connection.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				metrics.RecordPanic("http")
				logger.WithContext(r.Context()).WithFields(logrus.Fields{
					"component": "http",
					"panic":     fmt.Sprint(rec),
					"stack":     string(debug.Stack()),
					"method":    r.Method,
					"path":      r.URL.Path,
				}).Error("panic serving request")

				internalhttputil.WriteServiceError(w, r, errors.Internal("", nil))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
