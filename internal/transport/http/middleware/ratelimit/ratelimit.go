// Package ratelimit provides per-client token bucket rate limiting.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// idleTTL drops buckets for clients not seen for a while; a bucket idle this
// long would have refilled completely anyway.
const idleTTL = 2 * time.Minute

// bucket represents a token bucket for rate limiting.
type bucket struct {
	tokens   float64
	lastFill time.Time
	mu       sync.Mutex
}

// Limiter tracks rate limits per client key.
type Limiter struct {
	perMinute int
	buckets   sync.Map // map[clientKey]*bucket
	now       func() time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

// New creates a limiter allowing perMinute requests per client (0 = unlimited).
// It sweeps idle buckets in the background until Close.
func New(perMinute int) *Limiter {
	l := &Limiter{perMinute: perMinute, now: time.Now, stop: make(chan struct{})}
	go l.sweepLoop()
	return l
}

// Close stops the idle bucket sweep.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Allow reports whether a request from key may proceed.
func (l *Limiter) Allow(key string) bool {
	if l.perMinute <= 0 {
		return true
	}

	val, _ := l.buckets.LoadOrStore(key, &bucket{
		tokens:   float64(l.perMinute),
		lastFill: l.now(),
	})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastFill).Seconds()
	capacity := float64(l.perMinute)
	b.tokens = min(capacity, b.tokens+elapsed*capacity/60.0)
	b.lastFill = now

	if b.tokens >= 1.0 {
		b.tokens--
		return true
	}
	return false
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep deletes buckets idle for longer than idleTTL.
func (l *Limiter) sweep() int {
	cutoff := l.now().Add(-idleTTL)
	removed := 0
	l.buckets.Range(func(key, val any) bool {
		b := val.(*bucket)
		b.mu.Lock()
		idle := b.lastFill.Before(cutoff)
		b.mu.Unlock()
		if idle {
			l.buckets.CompareAndDelete(key, val)
			removed++
		}
		return true
	})
	return removed
}

// Middleware enforces the limit keyed by client IP. With trustProxy the
// first X-Forwarded-For entry is used instead of the socket address.
func Middleware(limiter *Limiter, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(ClientIP(r, trustProxy)) {
				writeTooManyRequests(w, 60/max(limiter.perMinute, 1))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the caller address used as the rate limit key.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeTooManyRequests writes a JSON 429 response.
func writeTooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"message": "rate limit exceeded",
			"type":    "rate_limit_error",
		},
	})
}
