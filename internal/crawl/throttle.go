package crawl

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle is a coarse per-platform+account token-bucket burst guard. It
// sits in front of the sliding-window ratelimit.Limiter each adapter owns: the
// sliding window enforces the documented minute/hour/day budgets, while
// this bucket additionally paces requests at a steady configured rate so a
// batch Search call cannot fire every request back-to-back.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewThrottle(requestsPerSecond float64, burst int) *Throttle {
	return &Throttle{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Wait blocks until key (typically "<platform>:<account>") may issue
// another request, creating that key's bucket lazily on first use.
func (t *Throttle) Wait(ctx context.Context, key string) error {
	return t.bucketFor(key).Wait(ctx)
}

func (t *Throttle) bucketFor(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[key]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.limiters[key] = l
	}
	return l
}
