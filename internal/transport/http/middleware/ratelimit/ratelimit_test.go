package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(t *testing.T, perMinute int) (*Limiter, *clock) {
	t.Helper()
	l := New(perMinute)
	t.Cleanup(l.Close)
	c := &clock{now: time.Now()}
	l.now = c.Now
	return l, c
}

func TestAllowBurstAndRefill(t *testing.T) {
	l, c := newLimiter(t, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d", i)
	}
	assert.False(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("5.6.7.8"), "buckets are per client")

	c.Advance(20 * time.Second) // 3/min → one token
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestAllowManyClients(t *testing.T) {
	l, _ := newLimiter(t, 1)

	for i := 0; i < 20000; i++ {
		l.Allow(fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff))
	}

	over := 0
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("192.168.%d.%d", i>>8, i&0xff)
		allowed := 0
		for j := 0; j < 5; j++ {
			if l.Allow(key) {
				allowed++
			}
		}
		if allowed > 1 {
			over++
		}
	}
	assert.Zero(t, over, "clients allowed more than 1 request/min")
}

func TestSweepDropsIdleBuckets(t *testing.T) {
	l, c := newLimiter(t, 1)

	assert.True(t, l.Allow("idle"))
	c.Advance(idleTTL + time.Second)
	assert.True(t, l.Allow("active"))
	assert.False(t, l.Allow("active"))

	assert.Equal(t, 1, l.sweep())

	_, idleKept := l.buckets.Load("idle")
	_, activeKept := l.buckets.Load("active")
	assert.False(t, idleKept)
	assert.True(t, activeKept)
	assert.False(t, l.Allow("active"), "sweep keeps the active client's spent bucket")
}

func TestUnlimited(t *testing.T) {
	l, _ := newLimiter(t, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow("x"))
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := newLimiter(t, 1)
	handler := Middleware(l, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/token", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_error")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")

	assert.Equal(t, "10.0.0.1", ClientIP(req, false))
	assert.Equal(t, "203.0.113.7", ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.1", ClientIP(req, true))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", ClientIP(req, false))
}
