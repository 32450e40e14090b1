package worker

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rate float64, burst int) (*PerClientRateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewPerClientRateLimiter(rate, burst)
	l.now = clock.now
	l.lastCleanup = clock.t
	return l, clock
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(2, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"), "request %d", i)
	}
	assert.False(t, l.Allow("a"))

	clock.advance(500 * time.Millisecond)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clock.advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("a"))
	}
	assert.False(t, l.Allow("a"), "refill is capped at burst")
}

func TestRateLimiter_PerClient(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	stats := l.Stats()
	assert.Equal(t, 2, stats["active_clients"])
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, int64(1), stats["total_rejected"])
}

func TestRateLimiter_CleansUpIdleClients(t *testing.T) {
	l, clock := newTestLimiter(1, 1)
	l.Allow("a")
	clock.advance(11 * time.Minute)
	l.Allow("b")
	assert.Equal(t, 1, l.Stats()["active_clients"])
}

func TestRateLimiter_DisabledWithoutRate(t *testing.T) {
	l, _ := newTestLimiter(0, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestPerClientRateLimitMiddleware(t *testing.T) {
	l, _ := newTestLimiter(0.5, 1)
	handler := PerClientRateLimitMiddleware(l)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req.RemoteAddr = "10.0.0.1:6666"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "port does not change the client")
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
}
