package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireWithinBudgetDoesNotBlock(t *testing.T) {
	l := New(Config{PerMinute: 5, PerHour: 100, PerDay: 1000, MinDelay: 0})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestLimiter_MinDelayEnforced(t *testing.T) {
	l := New(Config{PerMinute: 100, PerHour: 1000, PerDay: 10000, MinDelay: 120 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	start := time.Now()
	require.NoError(t, l.Acquire(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_BackoffGrowsWithFailures(t *testing.T) {
	l := New(Config{
		PerMinute:   1000,
		PerHour:     10000,
		PerDay:      100000,
		MinDelay:    0,
		BackoffBase: 10 * time.Millisecond,
		BackoffMult: 2.0,
		MaxBackoff:  time.Second,
	})

	l.RecordFailure()
	w1 := l.backoffDelay()
	l.RecordFailure()
	w2 := l.backoffDelay()
	assert.Greater(t, w2, w1)

	l.RecordSuccess()
	assert.Equal(t, time.Duration(0), l.backoffDelay())
}

func TestLimiter_RateLimitHitPenalty(t *testing.T) {
	l := New(DefaultConfig())
	l.RecordRateLimitHit()
	assert.Equal(t, 2, l.failures)
	l.RecordRateLimitHit()
	assert.Equal(t, 4, l.failures)
}

func TestLimiter_WindowExhaustionThenRecovery(t *testing.T) {
	// After exactly `limit` accepted entries the window refuses
	// until an entry ages out.
	w := &window{limit: 2, period: 50 * time.Millisecond}
	now := time.Now()
	w.timestamps = []time.Time{now, now}

	assert.Greater(t, w.waitFor(now), time.Duration(0))

	later := now.Add(60 * time.Millisecond)
	w.purge(later)
	assert.Equal(t, time.Duration(0), w.waitFor(later))
}

func TestManager_GetOrCreateIsIdempotent(t *testing.T) {
	m := NewManager(DefaultConfig())
	a := m.GetOrCreate("reddit:acct1", nil)
	b := m.GetOrCreate("reddit:acct1", nil)
	assert.Same(t, a, b)

	a.RecordFailure()
	stats := m.GetAllStats()
	assert.Equal(t, 1, stats["reddit:acct1"].ConsecutiveFails)

	m.ResetAll()
	stats = m.GetAllStats()
	assert.Equal(t, 0, stats["reddit:acct1"].ConsecutiveFails)
}
