package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/domain/organization"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
	"github.com/reachby3c/engagement-agent/internal/posting"
)

func TestTaskRunner_FiresDueTask(t *testing.T) {
	runner := NewTaskRunner(logging.Nop())
	fired := make(chan struct{}, 10)
	runner.Register("tick", 10*time.Millisecond, func(ctx context.Context) error {
		fired <- struct{}{}
		return nil
	})

	// Make it due immediately rather than waiting out the first interval.
	runner.mu.Lock()
	runner.tasks["tick"].NextRunAt = time.Now().UTC()
	runner.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	defer runner.Stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("task did not fire")
	}

	status := runner.Status()
	require.Contains(t, status, "tick")
	assert.GreaterOrEqual(t, status["tick"].RunCount, int64(1))
}

func TestTaskRunner_DisabledTaskSkipped(t *testing.T) {
	runner := NewTaskRunner(logging.Nop())
	var calls int64
	var mu sync.Mutex
	runner.Register("off", 10*time.Millisecond, func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})
	runner.SetEnabled("off", false)
	runner.mu.Lock()
	runner.tasks["off"].NextRunAt = time.Now().UTC()
	runner.mu.Unlock()

	runner.tick(context.Background())
	runner.wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestTaskRunner_ErrorBookkeeping(t *testing.T) {
	runner := NewTaskRunner(logging.Nop())
	runner.Register("boom", time.Hour, func(ctx context.Context) error {
		return errors.New("provider down")
	})

	require.NoError(t, runner.TriggerNow(context.Background(), "boom"))

	status := runner.Status()
	assert.Equal(t, int64(1), status["boom"].ErrorCount)
	assert.Equal(t, "provider down", status["boom"].LastError)
}

func TestTaskRunner_TaskPanicIsContained(t *testing.T) {
	runner := NewTaskRunner(logging.Nop())
	runner.Register("panics", time.Hour, func(ctx context.Context) error {
		panic("bad task")
	})

	require.NoError(t, runner.TriggerNow(context.Background(), "panics"))
	status := runner.Status()
	assert.Equal(t, int64(1), status["panics"].ErrorCount)
	assert.Contains(t, status["panics"].LastError, "panic")
}

func TestTaskRunner_TriggerUnknownTask(t *testing.T) {
	runner := NewTaskRunner(logging.Nop())
	assert.Error(t, runner.TriggerNow(context.Background(), "missing"))
}

func workerFixture(candidates []ResponseData) (*Worker, *posting.Queue, *OrgLimitManager, *[]ResponseStatus) {
	manager := NewOrgLimitManager()
	manager.SetLimits("org", permissiveLimits())
	checker := NewChecker(manager)

	queue := posting.New(posting.DefaultConfig(), logging.Nop())
	var transitions []ResponseStatus

	worker := NewWorker(checker, manager, queue,
		func(ctx context.Context, limit int) ([]ResponseData, error) { return candidates, nil },
		func(ctx context.Context, orgID string) (organization.Limits, error) { return permissiveLimits(), nil },
		func(ctx context.Context, resp ResponseData, status ResponseStatus, auditNote string) error {
			transitions = append(transitions, status)
			return nil
		},
		logging.Nop())
	return worker, queue, manager, &transitions
}

func TestWorker_EnqueuesEligibleAndRecordsPost(t *testing.T) {
	worker, queue, manager, transitions := workerFixture([]ResponseData{eligibleResponse()})

	require.NoError(t, worker.ProcessEligibleResponses(context.Background()))

	assert.Equal(t, 1, queue.Stats().Queued)
	assert.Equal(t, []ResponseStatus{ResponsePosting}, *transitions)

	item, ok := queue.Dequeue(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "resp-1", item.ResponseID)
	assert.Equal(t, "org", item.OrganizationID)
	assert.GreaterOrEqual(t, item.Priority, 65)

	// The enqueue was recorded against the org's rate accounting.
	manager.mu.Lock()
	defer manager.mu.Unlock()
	assert.Len(t, manager.log["org"], 1)
}

func TestWorker_SkipsIneligible(t *testing.T) {
	resp := eligibleResponse()
	resp.CanAutoPost = false
	worker, queue, _, _ := workerFixture([]ResponseData{resp})

	require.NoError(t, worker.ProcessEligibleResponses(context.Background()))
	assert.Zero(t, queue.Stats().Total)
}
