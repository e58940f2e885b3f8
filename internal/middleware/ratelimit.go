package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teachhub/telemetry/internal/pkg/apperrors"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter hands out one token bucket per client key. Buckets idle for
// longer than limiterIdleTTL are swept.
type ClientLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimit
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

// NewClientLimiter allows qps requests per second per client. A
// non-positive qps disables limiting.
func NewClientLimiter(qps float64, burst int) *ClientLimiter {
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ClientLimiter{
		limiters:  make(map[string]*clientLimit),
		limit:     limit,
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (l *ClientLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &clientLimit{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func RateLimitMiddleware(l *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
