package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientBucket is the token bucket of one client and when it was last used.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// IPRateLimiter keeps one token bucket per client address. Buckets unused
// for longer than the idle TTL are dropped, at most once per TTL, by the
// next Allow call.
type IPRateLimiter struct {
	buckets   sync.Map // map[string]*clientBucket
	rate      rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep atomic.Int64
	now       func() time.Time
}

// NewIPRateLimiter creates a limiter allowing rps requests per second with
// the given burst for every client. A non-positive idleTTL keeps buckets
// forever.
func NewIPRateLimiter(rps float64, burst int, idleTTL time.Duration) *IPRateLimiter {
	l := &IPRateLimiter{
		rate:    rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
	}
	l.lastSweep.Store(l.now().UnixNano())

	return l
}

// Allow reports whether a request from key is within its budget.
func (l *IPRateLimiter) Allow(key string) bool {
	now := l.now()
	l.sweep(now)

	b := l.bucket(key)
	b.lastSeen.Store(now.UnixNano())

	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *IPRateLimiter) Len() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (l *IPRateLimiter) bucket(key string) *clientBucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*clientBucket)
	}

	v, _ := l.buckets.LoadOrStore(key, &clientBucket{limiter: rate.NewLimiter(l.rate, l.burst)})
	return v.(*clientBucket)
}

// sweep drops idle buckets once the TTL has passed since the last sweep.
// Only the caller that wins the swap does the work.
func (l *IPRateLimiter) sweep(now time.Time) {
	if l.idleTTL <= 0 {
		return
	}

	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.idleTTL) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	cutoff := now.Add(-l.idleTTL).UnixNano()
	l.buckets.Range(func(key, v any) bool {
		if v.(*clientBucket).lastSeen.Load() < cutoff {
			l.buckets.CompareAndDelete(key, v)
		}
		return true
	})
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// TrustProxy keys clients by X-Forwarded-For or X-Real-IP. Enable it only
	// behind a proxy that sets those headers itself; otherwise any client
	// can pick its own bucket.
	TrustProxy bool

	// Exempt paths are never limited.
	Exempt PathSet
}

// RateLimit returns a middleware that rejects requests over the per-client
// budget with 429.
func RateLimit(limiter *IPRateLimiter, cfg RateLimitConfig, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Exempt.Has(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r, cfg.TrustProxy)
			if !limiter.Allow(ip) {
				logger.Warn("rate limit exceeded",
					zap.String("remote_ip", ip),
					zap.String("route", routeTemplate(r)),
					zap.String("request_id", RequestIDFromContext(r.Context())),
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address a request is limited by. Proxy headers are
// consulted only when trustProxy is set.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
