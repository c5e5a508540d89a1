package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/o008/registry/coreengine/observability"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware so that the first one is outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs each request and records its status and duration
// under route.
func LoggingMiddleware(logger Logger, route string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			code := rec.code()
			durationMS := int(time.Since(start).Milliseconds())
			observability.RecordHTTPRequest(route, strconv.Itoa(code), durationMS)

			if logger == nil {
				return
			}
			if code >= http.StatusInternalServerError {
				logger.Warn("http_request_failed",
					"route", route,
					"path", r.URL.Path,
					"status", code,
					"duration_ms", durationMS,
				)
				return
			}
			logger.Debug("http_request_completed",
				"route", route,
				"path", r.URL.Path,
				"status", code,
				"duration_ms", durationMS,
			)
		})
	}
}

// =============================================================================
// RECOVERY MIDDLEWARE
// =============================================================================

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware(logger Logger, route string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					if logger != nil {
						logger.Error("http_panic_recovered",
							"route", route,
							"panic", fmt.Sprintf("%v", p),
							"stack", string(debug.Stack()),
						)
					}
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
