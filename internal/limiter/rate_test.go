package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinWindow(t *testing.T) {
	r := NewRateLimiter(2, time.Millisecond)
	assert.True(t, r.Allow())
	assert.True(t, r.Allow())
	assert.False(t, r.Allow())
}

func TestDisabledLimiter(t *testing.T) {
	r := NewRateLimiter(0, time.Millisecond)
	for i := 0; i < 100; i++ {
		assert.True(t, r.Allow())
	}
	var nilLimiter *RateLimiter
	assert.True(t, nilLimiter.Allow())
}

func TestWaitHonoursContext(t *testing.T) {
	r := NewRateLimiter(1, 5*time.Millisecond)
	assert.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
}

func TestWaitEventuallyAllows(t *testing.T) {
	r := NewRateLimiter(1, 10*time.Millisecond)
	assert.True(t, r.Allow())

	start := time.Now()
	assert.NoError(t, r.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}
