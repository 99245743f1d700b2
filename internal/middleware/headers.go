package middleware

import (
	"net/http"

	"github.com/aetherlms/lms-server/internal/config"
	"github.com/aetherlms/lms-server/internal/metrics"
)

// SecurityHeaders sets the baseline security headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		next.ServeHTTP(w, r)
	})
}

// NoCacheDynamic disables caching for the dynamic routes in routes.
func NoCacheDynamic(routes *config.RoutesConfig) func(http.Handler) http.Handler {
	if routes == nil {
		routes = config.DefaultRoutesConfig()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if routes.IsDynamic(r.URL.Path) {
				w.Header().Set("Cache-Control", "no-store, must-revalidate")
				w.Header().Set("X-Middleware-Cache", "no-cache")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Metrics records request counts and latencies by route template.
func Metrics(next http.Handler) http.Handler {
	return metrics.InstrumentHandler(next)
}
