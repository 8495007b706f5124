package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORSConfig holds the cross-origin policy.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// DefaultCORSMethods are the methods the clothes API serves.
var DefaultCORSMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
}

// DefaultCORSHeaders are the request headers browsers may send.
var DefaultCORSHeaders = []string{"Content-Type", RequestIDHeader}

// OriginMatcher reports whether a request may come from its Origin. Requests
// without an Origin header always match. Entries may be "*" or contain one
// wildcard, e.g. https://*.example.com, and compare case-insensitively. An
// empty allow-list matches no origin.
func OriginMatcher(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return r.Header.Get("Origin") == ""
		}
	}

	c := cors.New(cors.Options{AllowedOrigins: allowed})

	return func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || c.OriginAllowed(r)
	}
}

// CORS returns a middleware that answers preflights and sets CORS headers for
// allowed origins. Requests whose Origin does not match the allow-list are
// rejected with 403; requests without an Origin header pass through.
func CORS(cfg CORSConfig, logger *zap.Logger) Middleware {
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = DefaultCORSHeaders
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   methods,
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           cfg.MaxAge,
	})

	originAllowed := OriginMatcher(cfg.AllowedOrigins)

	return func(next http.Handler) http.Handler {
		wrapped := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !originAllowed(r) {
				logger.Warn("origin not allowed",
					zap.String("origin", r.Header.Get("Origin")),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
				)
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}

			wrapped.ServeHTTP(w, r)
		})
	}
}
