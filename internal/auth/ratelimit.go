package auth

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"mds-backend/internal/httperr"
)

// Limiter is a per-key token bucket used to slow down credential guessing.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      rate.Limit
	burst     int
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const staleBucket = 10 * time.Minute

// NewLimiter allows requests per window for each key, with bursts up to burst.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	return &Limiter{
		buckets:   make(map[string]*bucket),
		rate:      rate.Limit(float64(requests) / window.Seconds()),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// Allow reports whether a request for key may proceed, and if not how long
// the caller should wait.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > staleBucket {
		l.sweep(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, max(d, time.Second)
	}
	return true, 0
}

// sweep drops idle buckets that have refilled. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleBucket && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Middleware rejects requests from a client IP that exceeded its budget.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, wait := l.Allow(c.IP())
		if !ok {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(wait.Round(time.Second).Seconds())))
			return httperr.New("RATE_LIMITED", fiber.StatusTooManyRequests, "Too many requests")
		}
		return c.Next()
	}
}
