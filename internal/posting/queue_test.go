package posting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

func testQueue() *Queue {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 5
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	cfg.PollInterval = 2 * time.Millisecond
	return New(cfg, logging.Nop())
}

func TestEnqueue_RefusesWhenFull(t *testing.T) {
	q := testQueue()
	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
		require.NoError(t, err)
	}
	_, err := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	assert.Error(t, err)
}

func TestDequeue_PriorityOrder(t *testing.T) {
	q := testQueue()
	low, err := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	require.NoError(t, err)
	high, err := q.Enqueue(EnqueueRequest{Priority: 10, ScheduledFor: time.Now(), MaxRetries: 3})
	require.NoError(t, err)

	got, ok := q.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, high.ID, got.ID)
	assert.Equal(t, StatusProcessing, got.Status)

	got2, ok := q.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, low.ID, got2.ID)
}

func TestDequeue_SkipsFutureScheduled(t *testing.T) {
	q := testQueue()
	future, err := q.Enqueue(EnqueueRequest{Priority: 10, ScheduledFor: time.Now().Add(time.Hour), MaxRetries: 3})
	require.NoError(t, err)
	ready, err := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	require.NoError(t, err)

	got, ok := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, ready.ID, got.ID)
	assert.NotEqual(t, future.ID, got.ID)
}

func TestDequeue_TimesOutWhenEmpty(t *testing.T) {
	q := testQueue()
	_, ok := q.Dequeue(context.Background(), 20*time.Millisecond)
	assert.False(t, ok)
}

func TestComplete_SuccessRemovesItem(t *testing.T) {
	q := testQueue()
	item, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	q.Dequeue(context.Background(), time.Second)

	q.Complete(item.ID, PostResult{Success: true, ExternalID: "abc"}, nil)
	assert.Equal(t, StatusCompleted, item.Status)
	assert.Equal(t, 0, q.Stats().Total)
}

func TestComplete_RetryableFailureReschedules(t *testing.T) {
	q := testQueue()
	item, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	q.Dequeue(context.Background(), time.Second)

	q.Complete(item.ID, PostResult{Success: false, ErrorCode: "RATELIMIT", Retryable: true}, nil)
	assert.Equal(t, StatusRetryPending, item.Status)
	assert.Equal(t, 1, item.RetryCount)
	assert.True(t, item.ScheduledFor.After(time.Now().Add(-time.Second)))
}

func TestComplete_NonRetryableFailureIsTerminal(t *testing.T) {
	q := testQueue()
	item, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	q.Dequeue(context.Background(), time.Second)

	var failed *QueueItem
	q.Complete(item.ID, PostResult{Success: false, ErrorCode: "AUTH_FAILED", Retryable: false}, func(i *QueueItem) {
		failed = i
	})
	assert.Equal(t, StatusFailed, item.Status)
	require.NotNil(t, failed)
	assert.Equal(t, item.ID, failed.ID)
}

func TestComplete_RetriesExhaustedBecomesFailed(t *testing.T) {
	q := testQueue()
	item, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 2})

	for i := 0; i < 2; i++ {
		q.Dequeue(context.Background(), time.Second)
		q.Complete(item.ID, PostResult{Success: false, ErrorCode: "RATELIMIT", Retryable: true}, nil)
		assert.Equal(t, StatusRetryPending, item.Status)
		item.ScheduledFor = time.Now() // force ready for the next Dequeue in this test
	}

	q.Dequeue(context.Background(), time.Second)
	q.Complete(item.ID, PostResult{Success: false, ErrorCode: "RATELIMIT", Retryable: true}, nil)
	assert.Equal(t, StatusFailed, item.Status)
}

func TestComplete_WorkerErrorEscalatesAfterThreeConsecutive(t *testing.T) {
	q := testQueue()
	item, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 10})

	for i := 0; i < 2; i++ {
		q.Dequeue(context.Background(), time.Second)
		q.Complete(item.ID, PostResult{Success: false, ErrorCode: errorCodeWorkerError, Retryable: true}, nil)
		assert.Equal(t, StatusRetryPending, item.Status)
		item.ScheduledFor = time.Now()
	}

	// Third consecutive WORKER_ERROR escalates to failed even though
	// retries remain and the result claims retryable.
	q.Dequeue(context.Background(), time.Second)
	q.Complete(item.ID, PostResult{Success: false, ErrorCode: errorCodeWorkerError, Retryable: true}, nil)
	assert.Equal(t, StatusFailed, item.Status)
}

func TestCancel_OnlyLegalWhileQueuedOrRetryPending(t *testing.T) {
	q := testQueue()
	item, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	require.NoError(t, q.Cancel(item.ID))
	assert.Equal(t, StatusCancelled, item.Status)

	item2, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})
	q.Dequeue(context.Background(), time.Second)
	assert.Error(t, q.Cancel(item2.ID))
}

func TestStartStop_ProcessesEnqueuedItems(t *testing.T) {
	q := testQueue()
	item, _ := q.Enqueue(EnqueueRequest{Priority: 1, ScheduledFor: time.Now(), MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processed := make(chan string, 1)
	q.Start(ctx, 2, func(_ context.Context, it *QueueItem) PostResult {
		processed <- it.ID
		return PostResult{Success: true}
	}, nil)

	select {
	case id := <-processed:
		assert.Equal(t, item.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not process item in time")
	}

	assert.True(t, q.Stop(time.Second))
}

func TestWorkers_EachItemProcessedExactlyOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 50
	cfg.PollInterval = 2 * time.Millisecond
	q := New(cfg, logging.Nop())

	const total = 25
	for i := 0; i < total; i++ {
		_, err := q.Enqueue(EnqueueRequest{Priority: i % 5, MaxRetries: 1})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := make(map[string]int)
	q.Start(ctx, 4, func(_ context.Context, it *QueueItem) PostResult {
		mu.Lock()
		attempts[it.ID]++
		mu.Unlock()
		return PostResult{Success: true}
	}, nil)

	deadline := time.Now().Add(5 * time.Second)
	for q.Stats().Total > 0 {
		if time.Now().After(deadline) {
			t.Fatal("queue did not drain in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, q.Stop(time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, attempts, total)
	for id, n := range attempts {
		assert.Equal(t, 1, n, "item %s processed more than once", id)
	}
}

func TestComputeRetryDelay_CapsAtMax(t *testing.T) {
	base := 10 * time.Millisecond
	max := 50 * time.Millisecond
	assert.Equal(t, base, computeRetryDelay(base, max, 1))
	assert.Equal(t, 2*base, computeRetryDelay(base, max, 2))
	assert.Equal(t, 4*base, computeRetryDelay(base, max, 3))
	assert.InDelta(t, float64(max), float64(computeRetryDelay(base, max, 10)), float64(time.Millisecond))
}
