package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

// JobQueue is the durable handoff between the Scheduler's trigger and the
// Processor, so a crawl result survives a process restart before the
// Processor has consumed it. A Redis list-based queue with a DLQ
// (RPush/BRPopLPush/LRem) holding crawl-result payloads keyed by config
// name.
type JobQueue struct {
	client *redis.Client
	logger logging.Logger
}

const (
	jobMaxRetries     = 3
	jobQueueKeyPrefix = "crawl:queue:"
	jobProcKeyPrefix  = "crawl:processing:"
	jobDLQKeyPrefix   = "crawl:dlq:"
	jobDataKeyPrefix  = "crawl:job:"
)

// QueuedJob carries one crawl result awaiting processing. Distinct from
// the Scheduler's Job (a config's run bookkeeping row): this is the
// durable handoff payload between one trigger and the Processor.
type QueuedJob struct {
	ID         string      `json:"id"`
	ConfigName string      `json:"config_name"`
	Result     CrawlResult `json:"result"`
	CreatedAt  time.Time   `json:"created_at"`
	RetryCount int         `json:"retry_count"`
	LastError  string      `json:"last_error,omitempty"`
}

func NewJobQueue(client *redis.Client, logger logging.Logger) *JobQueue {
	return &JobQueue{client: client, logger: logger}
}

// Enqueue hands a crawl result off to the queue, surviving a Processor
// restart between the Scheduler's callback and processing.
func (q *JobQueue) Enqueue(ctx context.Context, configName string, result CrawlResult) (string, error) {
	job := &QueuedJob{ID: uuid.New().String(), ConfigName: configName, Result: result, CreatedAt: time.Now().UTC()}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal crawl job: %w", err)
	}

	dataKey := jobDataKeyPrefix + job.ID
	if err := q.client.Set(ctx, dataKey, data, 24*time.Hour).Err(); err != nil {
		return "", fmt.Errorf("store crawl job: %w", err)
	}
	if err := q.client.RPush(ctx, jobQueueKeyPrefix+configName, job.ID).Err(); err != nil {
		return "", fmt.Errorf("enqueue crawl job: %w", err)
	}
	q.logger.Debug("crawl job enqueued", "job_id", job.ID, "config", configName, "posts", len(result.Posts))
	return job.ID, nil
}

// Dequeue atomically moves one job from configName's queue to its
// processing list and returns it, blocking up to timeout.
func (q *JobQueue) Dequeue(ctx context.Context, configName string, timeout time.Duration) (*QueuedJob, error) {
	queueKey := jobQueueKeyPrefix + configName
	procKey := jobProcKeyPrefix + configName

	jobID, err := q.client.BRPopLPush(ctx, queueKey, procKey, timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue crawl job: %w", err)
	}

	data, err := q.client.Get(ctx, jobDataKeyPrefix+jobID).Result()
	if err == redis.Nil {
		q.client.LRem(ctx, procKey, 1, jobID)
		return nil, fmt.Errorf("crawl job data not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get crawl job data: %w", err)
	}

	var job QueuedJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal crawl job: %w", err)
	}
	return &job, nil
}

// Complete removes a successfully processed job from its processing list
// and discards its stored payload.
func (q *JobQueue) Complete(ctx context.Context, configName, jobID string) error {
	procKey := jobProcKeyPrefix + configName
	if err := q.client.LRem(ctx, procKey, 1, jobID).Err(); err != nil {
		return fmt.Errorf("remove crawl job from processing: %w", err)
	}
	q.client.Del(ctx, jobDataKeyPrefix+jobID)
	return nil
}

// Fail records a processing failure, re-queuing the job immediately (with
// no delay) up to jobMaxRetries times before moving it to the dead-letter
// list.
func (q *JobQueue) Fail(ctx context.Context, configName, jobID, errMsg string) error {
	procKey := jobProcKeyPrefix + configName
	dataKey := jobDataKeyPrefix + jobID

	data, err := q.client.Get(ctx, dataKey).Result()
	if err != nil {
		return fmt.Errorf("get crawl job data: %w", err)
	}
	var job QueuedJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return fmt.Errorf("unmarshal crawl job: %w", err)
	}

	job.RetryCount++
	job.LastError = errMsg

	if job.RetryCount <= jobMaxRetries {
		updated, _ := json.Marshal(job)
		q.client.Set(ctx, dataKey, updated, 24*time.Hour)
		q.client.RPush(ctx, jobQueueKeyPrefix+configName, jobID)
		q.logger.Warn("crawl job failed, retrying", "job_id", jobID, "retry", job.RetryCount, "error", errMsg)
	} else {
		updated, _ := json.Marshal(job)
		q.client.RPush(ctx, jobDLQKeyPrefix+configName, string(updated))
		q.logger.Error("crawl job permanently failed", "job_id", jobID, "error", errMsg)
	}

	return q.client.LRem(ctx, procKey, 1, jobID).Err()
}

// Stats reports queue depth for one config's job lists.
type QueueStats struct {
	Queued     int64
	Processing int64
	DeadLetter int64
}

func (q *JobQueue) Stats(ctx context.Context, configName string) (QueueStats, error) {
	queued, err := q.client.LLen(ctx, jobQueueKeyPrefix+configName).Result()
	if err != nil {
		return QueueStats{}, err
	}
	processing, err := q.client.LLen(ctx, jobProcKeyPrefix+configName).Result()
	if err != nil {
		return QueueStats{}, err
	}
	dlq, err := q.client.LLen(ctx, jobDLQKeyPrefix+configName).Result()
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{Queued: queued, Processing: processing, DeadLetter: dlq}, nil
}
