package nlp

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const (
	// DefaultCallsPerMinute is the per-user model call budget when none is
	// configured.
	DefaultCallsPerMinute = 20

	// maxTrackedUsers bounds the limiter table; idle users are evicted.
	maxTrackedUsers = 4096
	limiterIdleTTL  = 30 * time.Minute
)

// UserLimiter enforces a per-user token-bucket limit on model calls.
//
// Limiters live in an expiring LRU so memory stays bounded however many
// users have ever talked to the assistant.  UserLimiter is safe for
// concurrent use.
type UserLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters *expirable.LRU[string, *rate.Limiter]
}

// NewUserLimiter allows perMinute calls per user per minute with a burst
// of burst.  perMinute ≤ 0 means DefaultCallsPerMinute; burst < 1 is
// coerced to 1.
func NewUserLimiter(perMinute, burst int) *UserLimiter {
	if perMinute <= 0 {
		perMinute = DefaultCallsPerMinute
	}
	if burst < 1 {
		burst = 1
	}
	return &UserLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedUsers, nil, limiterIdleTTL),
	}
}

// Allow reports whether userID may make another model call now.
func (l *UserLimiter) Allow(userID string) bool {
	return l.limiterFor(userID).Allow()
}

func (l *UserLimiter) limiterFor(userID string) *rate.Limiter {
	key := userID
	if key == "" {
		key = "anonymous"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(key, lim)
	}
	return lim
}
