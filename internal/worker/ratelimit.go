package worker

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// bucket is a token bucket. Callers hold the owning limiter's lock.
type bucket struct {
	lastSeen time.Time
	tokens   float64
}

// PerClientRateLimiter applies a token bucket per client key.
type PerClientRateLimiter struct {
	lastCleanup time.Time
	now         func() time.Time
	clients     map[string]*bucket
	rate        float64
	burst       int
	maxIdle     time.Duration
	requests    int64
	rejected    int64
	mu          sync.Mutex
}

// NewPerClientRateLimiter creates a limiter allowing rate requests per
// second per client with the given burst. A non-positive rate disables
// limiting.
func NewPerClientRateLimiter(rate float64, burst int) *PerClientRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &PerClientRateLimiter{
		now:         time.Now,
		clients:     make(map[string]*bucket),
		rate:        rate,
		burst:       burst,
		maxIdle:     10 * time.Minute,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether a request from clientKey may proceed and consumes
// a token if so.
func (l *PerClientRateLimiter) Allow(clientKey string) bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.maxIdle/2 {
		l.cleanupLocked(now)
	}
	l.requests++

	b, ok := l.clients[clientKey]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastSeen: now}
		l.clients[clientKey] = b
	}
	b.tokens = min(float64(l.burst), b.tokens+now.Sub(b.lastSeen).Seconds()*l.rate)
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	l.rejected++
	return false
}

// retryAfter is the whole seconds until one token refills.
func (l *PerClientRateLimiter) retryAfter() int {
	if l.rate <= 0 {
		return 0
	}
	return max(1, int(1/l.rate+0.999))
}

// cleanupLocked drops buckets idle longer than maxIdle.
func (l *PerClientRateLimiter) cleanupLocked(now time.Time) {
	for key, b := range l.clients {
		if now.Sub(b.lastSeen) > l.maxIdle {
			delete(l.clients, key)
		}
	}
	l.lastCleanup = now
}

// Stats returns aggregate statistics.
func (l *PerClientRateLimiter) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{
		"rate":           l.rate,
		"burst":          l.burst,
		"active_clients": len(l.clients),
		"total_requests": l.requests,
		"total_rejected": l.rejected,
	}
}

// PerClientRateLimitMiddleware rate limits by client address. Run it after
// middleware.RealIP so RemoteAddr holds the real client IP.
func PerClientRateLimitMiddleware(limiter *PerClientRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(limiter.retryAfter()))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey strips the port from RemoteAddr.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
