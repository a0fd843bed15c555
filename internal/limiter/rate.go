package limiter

import (
	"context"
	"sync"
	"time"
)

// RateLimiter allows at most maxRequests calls per sliding one-second window.
// A non-positive maxRequests disables limiting.
type RateLimiter struct {
	requestTimes []time.Time
	maxRequests  int
	pollDelay    time.Duration
	mu           sync.Mutex
}

func NewRateLimiter(maxRequests int, pollDelay time.Duration) *RateLimiter {
	if pollDelay <= 0 {
		pollDelay = 50 * time.Millisecond
	}
	capacity := maxRequests
	if capacity < 0 {
		capacity = 0
	}
	return &RateLimiter{
		requestTimes: make([]time.Time, 0, capacity),
		maxRequests:  maxRequests,
		pollDelay:    pollDelay,
	}
}

// Allow reports whether a request may go out now and, if so, records it.
func (r *RateLimiter) Allow() bool {
	if r == nil || r.maxRequests <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	oneSecondAgo := now.Add(-1 * time.Second)

	// Drop requests older than the window
	validTimes := r.requestTimes[:0]
	for _, t := range r.requestTimes {
		if t.After(oneSecondAgo) {
			validTimes = append(validTimes, t)
		}
	}
	r.requestTimes = validTimes

	if len(r.requestTimes) < r.maxRequests {
		r.requestTimes = append(r.requestTimes, now)
		return true
	}

	return false
}

// Wait blocks until Allow succeeds or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for !r.Allow() {
		timer := time.NewTimer(r.pollDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ctx.Err()
}
