// Package middleware holds the ambient HTTP middleware the nethttp
// transport installs ahead of the engine's dispatch, adapted from
// kari/api/internal/api/middleware/auth.go: structured access logging,
// a request-size guard, and an in-memory token-bucket rate limiter. None
// of this is engine state — internal/engine has no knowledge of it.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// slowRequestThreshold bumps an access log line from Info to Warn: a
// streamed or long-poll response can legitimately sit open for a while,
// but most requests through this engine should clear well under this.
const slowRequestThreshold = 2 * time.Second

// StructuredLogger logs one line per request via slog, mirroring the
// teacher's access-log fields (trace_id/method/path/status/latency/ip)
// plus bytes_written from chi's WrapResponseWriter, and escalates to Warn
// for 5xx statuses or requests slower than slowRequestThreshold so a
// log-level filter alone can surface the requests worth looking at.
func StructuredLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			latency := time.Since(start)
			fields := []any{
				slog.String("trace_id", chimw.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes_written", ww.BytesWritten()),
				slog.Duration("latency", latency),
				slog.String("ip", r.RemoteAddr),
			}

			level := slog.LevelInfo
			if ww.Status() >= 500 || latency > slowRequestThreshold {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http access", fields...)
		})
	}
}

// MaxBytes caps the request body at limit bytes using the stdlib's
// MaxBytesReader, same as the teacher's own guard — kept as a thin
// safety net ahead of the engine's own BodyParser limit: reads past
// limit fail, so the engine's read loop never receives more than limit
// bytes.
func MaxBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter is a per-IP token-bucket limiter, adapted from the
// teacher's package-level visitors map into an injectable, testable
// type instead of global mutable state.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	maxIdle  time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter allowing r events/sec with burst b,
// evicting visitors idle for longer than maxIdle.
func NewRateLimiter(r rate.Limit, b int, maxIdle time.Duration) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
		maxIdle:  maxIdle,
	}
}

// StartJanitor launches the background sweep that evicts idle visitors,
// same cadence-independent cleanup the teacher's init() goroutine did.
// The returned func stops the janitor.
func (rl *RateLimiter) StartJanitor(sweep time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.evictIdle()
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if time.Since(v.lastSeen) > rl.maxIdle {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	limiter := v.limiter
	rl.mu.Unlock()
	return limiter.Allow()
}

// Handler returns the middleware enforcing rl against chi's RealIP.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if !rl.allow(ip) {
			http.Error(w, `{"message": "Too many requests"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
