package api

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter guards the admin routes. Health, metrics and the effective
// configuration read are never limited.
type rateLimiter interface {
	Allow() bool
}

type adminLimiter struct {
	limiter *rate.Limiter
}

func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &adminLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (l *adminLimiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

// retryAfter is the whole number of seconds until the next token, at least one.
func (l *adminLimiter) retryAfter() time.Duration {
	if l == nil || l.limiter == nil || l.limiter.Limit() <= 0 {
		return time.Second
	}
	return max(time.Duration(float64(time.Second)/float64(l.limiter.Limit())), time.Second)
}

func limitAdmin(limiter rateLimiter, next http.HandlerFunc) http.Handler {
	if limiter == nil {
		return next
	}
	wait := time.Second
	if l, ok := limiter.(*adminLimiter); ok {
		wait = l.retryAfter()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Round(time.Second)/time.Second)))
		writeError(w, http.StatusTooManyRequests, "Too many admin requests", "configuration changes are rate limited, retry shortly")
	})
}
