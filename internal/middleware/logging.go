package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Logging returns a middleware that writes one access log entry per request.
// Requests to quiet paths are logged at debug level unless they fail with a
// server error.
func Logging(logger *zap.Logger, quiet PathSet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", routeTemplate(r)),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case quiet.Has(r.URL.Path):
				logger.Debug("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

// Recovery returns a middleware that turns a handler panic into a JSON 500.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler { //nolint:errorlint // recovered value, never wrapped
					panic(rv)
				}

				logger.Error("panic recovered",
					zap.Any("panic", rv),
					zap.Stack("stack"),
					zap.String("method", r.Method),
					zap.String("route", routeTemplate(r)),
					zap.String("request_id", w.Header().Get(RequestIDHeader)),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
