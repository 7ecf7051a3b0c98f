package automation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/reachby3c/engagement-agent/internal/domain/organization"
	"github.com/reachby3c/engagement-agent/internal/metrics"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
	"github.com/reachby3c/engagement-agent/internal/posting"
)

// ScheduledTask is one periodic job's bookkeeping row.
type ScheduledTask struct {
	Name       string
	Interval   time.Duration
	Enabled    bool
	NextRunAt  time.Time
	LastRunAt  time.Time
	RunCount   int64
	ErrorCount int64
	LastError  string

	fn func(ctx context.Context) error
}

// TaskRunner ticks once per second, firing any enabled task whose
// NextRunAt has passed in the background so one slow task never blocks
// another's schedule.
type TaskRunner struct {
	logger logging.Logger

	mu    sync.Mutex
	tasks map[string]*ScheduledTask

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewTaskRunner(logger logging.Logger) *TaskRunner {
	return &TaskRunner{logger: logger, tasks: make(map[string]*ScheduledTask)}
}

// Register adds a named periodic task, computing its first NextRunAt as
// now+interval.
func (r *TaskRunner) Register(name string, interval time.Duration, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = &ScheduledTask{
		Name:      name,
		Interval:  interval,
		Enabled:   true,
		NextRunAt: time.Now().UTC().Add(interval),
		fn:        fn,
	}
}

func (r *TaskRunner) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[name]; ok {
		t.Enabled = enabled
	}
}

// TriggerNow fires a named task immediately, outside its normal schedule.
// Like a scheduled run, it updates the task's bookkeeping, so NextRunAt
// moves to one interval after this run.
func (r *TaskRunner) TriggerNow(ctx context.Context, name string) error {
	r.mu.Lock()
	t, ok := r.tasks[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	r.run(ctx, t)
	return nil
}

// Start launches the 1-second tick loop.
func (r *TaskRunner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.stopCh != nil {
		r.mu.Unlock()
		return
	}
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

func (r *TaskRunner) Stop() {
	r.mu.Lock()
	if r.stopCh == nil {
		r.mu.Unlock()
		return
	}
	close(r.stopCh)
	r.stopCh = nil
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *TaskRunner) tick(ctx context.Context) {
	now := time.Now().UTC()
	r.mu.Lock()
	due := make([]*ScheduledTask, 0)
	for _, t := range r.tasks {
		if t.Enabled && !t.NextRunAt.After(now) {
			due = append(due, t)
		}
	}
	r.mu.Unlock()

	for _, t := range due {
		r.wg.Add(1)
		go func(task *ScheduledTask) {
			defer r.wg.Done()
			r.run(ctx, task)
		}(t)
	}
}

func (r *TaskRunner) run(ctx context.Context, t *ScheduledTask) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic in task %q: %v", t.Name, rec)
			}
		}()
		return t.fn(ctx)
	}()

	r.mu.Lock()
	t.RunCount++
	t.LastRunAt = time.Now().UTC()
	t.NextRunAt = t.LastRunAt.Add(t.Interval)
	if err != nil {
		t.ErrorCount++
		t.LastError = err.Error()
	} else {
		t.LastError = ""
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("periodic task failed", "task", t.Name, "error", err)
	}
}

// Status returns a point-in-time copy of every registered task's
// bookkeeping, keyed by name.
func (r *TaskRunner) Status() map[string]ScheduledTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ScheduledTask, len(r.tasks))
	for name, t := range r.tasks {
		cp := *t
		cp.fn = nil
		out[name] = cp
	}
	return out
}

const defaultAutoPostInterval = 5 * time.Minute

// CandidateSource fetches the next batch of candidate responses awaiting
// the eligibility check. Injected by the host, which owns persistence.
type CandidateSource func(ctx context.Context, limit int) ([]ResponseData, error)

// OrgLimitsSource fetches an organization's current Limits. Injected by
// the host for the same reason.
type OrgLimitsSource func(ctx context.Context, orgID string) (organization.Limits, error)

// ResponseStatusUpdater persists a response's status transition (and, on
// failure, an audit log entry).
type ResponseStatusUpdater func(ctx context.Context, resp ResponseData, status ResponseStatus, auditNote string) error

// Worker is the Auto-Post Worker: a periodic task that pulls eligible
// responses and hands them to the Posting Queue.
type Worker struct {
	checker       *Checker
	limiter       *OrgLimitManager
	queue         *posting.Queue
	fetchBatch    CandidateSource
	fetchOrgLimit OrgLimitsSource
	updateStatus  ResponseStatusUpdater
	logger        logging.Logger

	batchSize int
}

func NewWorker(checker *Checker, limiter *OrgLimitManager, queue *posting.Queue,
	fetchBatch CandidateSource, fetchOrgLimit OrgLimitsSource, updateStatus ResponseStatusUpdater,
	logger logging.Logger) *Worker {
	return &Worker{
		checker: checker, limiter: limiter, queue: queue,
		fetchBatch: fetchBatch, fetchOrgLimit: fetchOrgLimit, updateStatus: updateStatus,
		logger: logger, batchSize: 50,
	}
}

// RegisterOn adds the worker's periodic task (default every 5 minutes) to
// a TaskRunner.
func (w *Worker) RegisterOn(runner *TaskRunner) {
	runner.Register("auto_post_worker", defaultAutoPostInterval, w.ProcessEligibleResponses)
}

// ProcessEligibleResponses fetches a batch of candidates, checks each
// against its organization's limits, and enqueues the eligible ones.
func (w *Worker) ProcessEligibleResponses(ctx context.Context) error {
	candidates, err := w.fetchBatch(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("fetch candidate responses: %w", err)
	}

	for _, resp := range candidates {
		limits, err := w.fetchOrgLimit(ctx, resp.OrgID)
		if err != nil {
			w.logger.Error("auto-post worker: fetch org limits failed", "org", resp.OrgID, "error", err)
			continue
		}

		result := w.checker.Check(resp, limits)
		metrics.EligibilityChecksTotal.WithLabelValues(result.SuggestedAction).Inc()
		if !result.Eligible {
			if result.RequiresReview {
				if err := w.updateStatus(ctx, resp, resp.Status, "requires_review: "+result.Reason); err != nil {
					w.logger.Error("auto-post worker: status update failed", "error", err)
				}
			}
			continue
		}

		priority := autoPostPriority(resp)
		_, err = w.queue.Enqueue(posting.EnqueueRequest{
			ResponseID:     resp.ID,
			OrganizationID: resp.OrgID,
			Platform:       resp.Platform,
			Target:         resp.Target,
			TargetURL:      resp.TargetURL,
			ResponseText:   resp.ResponseText,
			Priority:       priority,
		})
		if err != nil {
			if updErr := w.updateStatus(ctx, resp, ResponseFailed, "enqueue failed: "+err.Error()); updErr != nil {
				w.logger.Error("auto-post worker: status update failed", "error", updErr)
			}
			continue
		}

		if err := w.updateStatus(ctx, resp, ResponsePosting, ""); err != nil {
			w.logger.Error("auto-post worker: status update failed", "error", err)
		}
		w.limiter.RecordPost(resp.OrgID, resp.Platform, resp.Target)
	}

	return nil
}

// autoPostPriority computes the queue priority: base 50, boosted by CTS
// score and inversely by CTA level, plus a recency bonus, clamped 0..100.
func autoPostPriority(resp ResponseData) int {
	score := 50.0
	score += math.Floor(resp.CTSScore * 20)
	score += float64(3-resp.CTALevel) * 5
	score += recencyBonus(resp.CreatedAt)
	return clampPriority(int(score))
}

func recencyBonus(createdAt time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	age := time.Since(createdAt)
	switch {
	case age < time.Hour:
		return 10
	case age < 6*time.Hour:
		return 5
	default:
		return 0
	}
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
