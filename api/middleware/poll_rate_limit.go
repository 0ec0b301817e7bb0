package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/angelmondragon/paytrack/api/responses"
	"github.com/angelmondragon/paytrack/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = time.Minute
)

// ScopeLimiter keeps one token bucket per client scope.
type ScopeLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*scopeBucket
	lastSweep time.Time
}

type scopeBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewScopeLimiter allows perMinute events per scope with the given burst.
// A non-positive perMinute disables limiting.
func NewScopeLimiter(perMinute, burst int) *ScopeLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &ScopeLimiter{
		limit:    limit,
		burst:    burst,
		now:      time.Now,
		limiters: map[string]*scopeBucket{},
	}
}

// Allow reports whether scope may proceed now.
func (l *ScopeLimiter) Allow(scope string) bool {
	if l == nil || l.limit == rate.Inf {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= limiterSweepEvery {
		for key, bucket := range l.limiters {
			if now.Sub(bucket.lastSeen) > limiterIdleTTL {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	bucket, ok := l.limiters[scope]
	if !ok {
		bucket = &scopeBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[scope] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// RetryAfter is the time for one token to refill.
func (l *ScopeLimiter) RetryAfter() time.Duration {
	if l == nil || l.limit == rate.Inf || l.limit <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limit)).Round(time.Millisecond)
}

func (l *ScopeLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// PollRateLimit throttles poll starts per client scope.
func PollRateLimit(limiter *ScopeLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scope := ClientScopeFromContext(ctx)
			if scope == "" {
				scope = clientIP(r)
			}
			if !limiter.Allow(scope) {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "policy", "poll_start"), "rate_limit.blocked")
				}
				responses.WriteRateLimited(ctx, w, limiter.RetryAfter(), "too many status checks, slow down")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
