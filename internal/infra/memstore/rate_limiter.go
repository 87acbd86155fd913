package memstore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-key token bucket for single-process deployments.
type RateLimiter struct {
	mu      sync.Mutex
	perMin  int
	buckets map[string]*rate.Limiter
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{perMin: perMinute, buckets: make(map[string]*rate.Limiter)}
}

func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.perMin <= 0 {
		return true, nil
	}
	r.mu.Lock()
	lim, ok := r.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMin)), r.perMin)
		r.buckets[key] = lim
	}
	r.mu.Unlock()
	return lim.Allow(), nil
}
