package posting

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/reachby3c/engagement-agent/internal/platform/apperrors"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

// Config tunes the queue's capacity and retry policy.
type Config struct {
	MaxQueueSize int
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration // Dequeue's internal poll granularity while waiting out the timeout
}

// DefaultConfig matches the defaults named for the auto-post worker: three
// retries, exponential backoff starting at 30s capped at 15 minutes.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize: 1000,
		MaxRetries:   3,
		BaseDelay:    30 * time.Second,
		MaxDelay:     15 * time.Minute,
		PollInterval: 50 * time.Millisecond,
	}
}

// Queue is the bounded priority queue: an item is in at most one of
// {queued, processing, retry_pending} at any time. The internal heap holds
// queued and retry_pending items only; processing items live in a separate
// set keyed by ID so a completed/failed terminal transition cannot race a
// second Dequeue of the same item.
type Queue struct {
	cfg    Config
	logger logging.Logger

	mu         sync.Mutex
	heap       priorityHeap
	processing map[string]*QueueItem
	byID       map[string]*QueueItem

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// PostFunc performs the actual platform post for one item and reports the
// outcome. Workers never let a panic from this escape: it is recovered and
// turned into a synthetic WORKER_ERROR result.
type PostFunc func(ctx context.Context, item *QueueItem) PostResult

// FailureFunc is invoked once an item reaches a terminal failed state.
type FailureFunc func(item *QueueItem)

func New(cfg Config, logger logging.Logger) *Queue {
	q := &Queue{
		cfg:        cfg,
		logger:     logger,
		processing: make(map[string]*QueueItem),
		byID:       make(map[string]*QueueItem),
		stopCh:     make(chan struct{}),
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds a new item, refusing when the queue is at MaxQueueSize
// (counting both queued/retry_pending and processing items).
func (q *Queue) Enqueue(req EnqueueRequest) (*QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.byID) >= q.cfg.MaxQueueSize {
		return nil, fmt.Errorf("%w (max_queue_size=%d)", apperrors.ErrQueueFull, q.cfg.MaxQueueSize)
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.cfg.MaxRetries
	}

	item := &QueueItem{
		ID:             uuid.New().String(),
		ResponseID:     req.ResponseID,
		OrganizationID: req.OrganizationID,
		Platform:       req.Platform,
		Target:         req.Target,
		TargetURL:      req.TargetURL,
		ResponseText:   req.ResponseText,
		Priority:       req.Priority,
		ScheduledFor:   req.ScheduledFor,
		CreatedAt:      time.Now(),
		Status:         StatusQueued,
		MaxRetries:     maxRetries,
		Metadata:       req.Metadata,
	}
	heap.Push(&q.heap, item)
	q.byID[item.ID] = item
	return item, nil
}

// Dequeue returns the next ready item, or (nil, false) if none becomes ready
// before timeout elapses. Items whose ScheduledFor is still in the future
// are skipped and left in the queue rather than returned early.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*QueueItem, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if item, ok := q.tryDequeue(); ok {
			return item, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-q.stopCh:
			return nil, false
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

func (q *Queue) tryDequeue() (*QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var notReady []*QueueItem
	var found *QueueItem

	for q.heap.Len() > 0 {
		candidate := heap.Pop(&q.heap).(*QueueItem)
		if candidate.ready(now) {
			found = candidate
			break
		}
		notReady = append(notReady, candidate)
	}
	for _, item := range notReady {
		heap.Push(&q.heap, item)
	}
	if found == nil {
		return nil, false
	}

	found.Status = StatusProcessing
	found.StartedAt = now
	q.processing[found.ID] = found
	return found, true
}

// Complete records the outcome of an attempt. On success, the item becomes
// terminal. On failure it either schedules a retry (status=retry_pending,
// re-enqueued at the computed delay) or becomes terminal failed, invoking
// onFailure.
func (q *Queue) Complete(id string, result PostResult, onFailure FailureFunc) {
	q.mu.Lock()
	item, ok := q.processing[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.processing, id)

	if result.Success {
		item.Status = StatusCompleted
		item.CompletedAt = time.Now()
		item.Result = &result
		delete(q.byID, item.ID)
		q.mu.Unlock()
		return
	}

	item.LastError = result.ErrorCode
	if result.ErrorCode == errorCodeWorkerError {
		item.ConsecutiveWorkerErrors++
	} else {
		item.ConsecutiveWorkerErrors = 0
	}

	// Worker errors are retryable like any other transient failure, but an
	// item stuck producing WORKER_ERROR on consecutive attempts indicates a
	// broken callback rather than a transient condition, so it escalates to
	// failed early rather than spending its full retry budget.
	workerErrorExhausted := item.ConsecutiveWorkerErrors > 2
	canRetry := result.Retryable && !workerErrorExhausted && item.RetryCount < item.MaxRetries

	if !canRetry {
		item.Status = StatusFailed
		item.CompletedAt = time.Now()
		item.Result = &result
		delete(q.byID, item.ID)
		q.mu.Unlock()
		if onFailure != nil {
			onFailure(item)
		}
		return
	}

	item.RetryCount++
	delay := computeRetryDelay(q.cfg.BaseDelay, q.cfg.MaxDelay, item.RetryCount)
	if result.WaitSeconds > 0 {
		waitDelay := time.Duration(result.WaitSeconds) * time.Second
		if waitDelay > delay {
			delay = waitDelay
		}
	}

	item.Status = StatusRetryPending
	item.ScheduledFor = time.Now().Add(delay)
	heap.Push(&q.heap, item)
	q.mu.Unlock()

	if q.logger != nil {
		q.logger.Warn("posting queue retry scheduled",
			"item_id", item.ID, "retry_count", item.RetryCount, "delay", delay, "error_code", result.ErrorCode)
	}
}

// computeRetryDelay implements delay = min(base*2^(retryCount-1), max),
// derived deterministically (no jitter) via a zero-randomization exponential
// backoff so the formula stays in one place shared with the rest of the
// codebase's retry logic.
func computeRetryDelay(base, max time.Duration, retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset() // restart from InitialInterval; the constructor began at its own default

	// NextBackOff returns the current interval and only then multiplies it
	// for the next call, so reaching base*2^(retryCount-1) takes exactly
	// retryCount calls, not retryCount-1.
	var delay time.Duration
	for i := 0; i < retryCount; i++ {
		delay = b.NextBackOff()
	}
	if delay > max {
		delay = max
	}
	return delay
}

// Cancel is legal only while the item is queued or retry_pending.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, id)
	}
	if item.Status != StatusQueued && item.Status != StatusRetryPending {
		return fmt.Errorf("%w: item %s is %s", apperrors.ErrNotCancellable, id, item.Status)
	}

	for i, h := range q.heap {
		if h.ID == id {
			heap.Remove(&q.heap, i)
			break
		}
	}
	item.Status = StatusCancelled
	delete(q.byID, id)
	return nil
}

// FindByResponseID returns the live (non-terminal) queue item carrying
// responseID, if any.
func (q *Queue) FindByResponseID(responseID string) (QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.byID {
		if item.ResponseID == responseID {
			return *item, true
		}
	}
	return QueueItem{}, false
}

// Stats reports a point-in-time snapshot of queue occupancy.
type Stats struct {
	Queued     int
	Processing int
	Total      int
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Queued:     q.heap.Len(),
		Processing: len(q.processing),
		Total:      len(q.byID),
	}
}

// Start launches n workers that loop Dequeue -> post -> Complete until Stop
// is called.
func (q *Queue) Start(ctx context.Context, n int, post PostFunc, onFailure FailureFunc) {
	for i := 0; i < n; i++ {
		q.wg.Add(1)
		go q.workerLoop(ctx, post, onFailure)
	}
}

func (q *Queue) workerLoop(ctx context.Context, post PostFunc, onFailure FailureFunc) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		item, ok := q.Dequeue(ctx, time.Second)
		if !ok {
			continue
		}

		result := q.runPost(ctx, post, item)
		q.Complete(item.ID, result, onFailure)
	}
}

// runPost isolates a callback panic into a synthetic WORKER_ERROR result so
// one bad item can never take down a worker goroutine.
func (q *Queue) runPost(ctx context.Context, post PostFunc, item *QueueItem) (result PostResult) {
	defer func() {
		if r := recover(); r != nil {
			result = PostResult{Success: false, ErrorCode: errorCodeWorkerError, Retryable: true}
			if q.logger != nil {
				q.logger.Error("posting queue worker panic", "item_id", item.ID, "recovered", r)
			}
		}
	}()
	return post(ctx, item)
}

// Stop signals all workers and waits up to timeout for them to exit.
func (q *Queue) Stop(timeout time.Duration) bool {
	q.stopOnce.Do(func() { close(q.stopCh) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
