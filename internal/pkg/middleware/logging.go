package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"

	"av1conv/internal/pkg/errors"
	"av1conv/internal/pkg/logger"
	"av1conv/internal/pkg/metrics"
)

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// Logging writes one access log line per request: error level for 5xx,
// warn for 4xx, info otherwise. Successful requests to quietPaths (probes,
// scrapes) are logged at debug.
func Logging(log *logger.Logger, quietPaths ...string) func(http.Handler) http.Handler {
	quiet := make(map[string]bool, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := record(w)
			next.ServeHTTP(sr, r)

			reqLog := log.FromContext(r.Context())
			logFn := reqLog.Info
			switch {
			case sr.status >= 500:
				logFn = reqLog.Error
			case sr.status >= 400:
				logFn = reqLog.Warn
			case quiet[r.URL.Path]:
				logFn = reqLog.Debug
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"route", routePattern(r),
				"status", sr.status,
				"size", sr.size,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}
			if sr.streamed {
				attrs = append(attrs, "streamed", true)
			}
			logFn("request completed", attrs...)
		})
	}
}

// Instrument records request counts and latencies per route pattern.
func Instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := record(w)
			next.ServeHTTP(sr, r)
			m.ObserveHTTP(r.Method, routePattern(r), sr.status, time.Since(start))
		})
	}
}

// Recovery turns handler panics into a 500 JSON error.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
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
				log.FromContext(r.Context()).Error("panic recovered",
					"panic", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
				)
				WriteErrorResponse(w, errors.CodeInternal, "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routePattern is the chi pattern that matched r, available once the
// router has dispatched it.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
