// Package middleware holds the HTTP middleware of the clothes API: panic
// recovery, request ids, access logs, Prometheus metrics, per-client rate
// limiting and CORS.
package middleware

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vyrodovalexey/clothes-api/internal/model"
)

// otherRoute labels requests whose route has no path template, such as
// the preflight catch-all.
const otherRoute = "other"

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain combines middlewares so the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// PathSet is a set of exact request paths, e.g. the probe and scrape
// endpoints that are logged quietly and never rate limited.
type PathSet map[string]struct{}

// NewPathSet builds a PathSet from paths.
func NewPathSet(paths ...string) PathSet {
	set := make(PathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether path is in the set. A nil set holds nothing.
func (s PathSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// routeTemplate returns the template of the matched route, such as
// /clothes/{id}, so labels and log fields do not grow with every id.
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return otherRoute
	}

	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return otherRoute
	}

	return tmpl
}

// statusRecorder remembers the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.wroteHeader {
		return
	}
	sr.status = code
	sr.wroteHeader = true
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.wroteHeader {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Hijack lets the change feed upgrade to a WebSocket through the chain.
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}

	conn, rw, err := hijacker.Hijack()
	if err == nil {
		sr.status = http.StatusSwitchingProtocols
		sr.wroteHeader = true
	}
	return conn, rw, err
}

func (sr *statusRecorder) Flush() {
	if flusher, ok := sr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// writeError writes the JSON error body the REST handlers use.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Code: status, Message: message})
}
