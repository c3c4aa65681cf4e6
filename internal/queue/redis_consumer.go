/**
 * Direct Redis Queue Consumer for the Document Validation Worker
 *
 * Compatible with the TypeScript RedisQueue implementation.
 * Uses simple Redis LIST operations for perfect compatibility.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
	"github.com/redis/go-redis/v9"
)

var errNoJobs = errors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// queueKeys names the Redis structures that hang off one queue.
type queueKeys struct {
	list       string
	data       string
	processing string
	completed  string
	failed     string
	results    string
	errors     string
	events     string
}

func keysFor(queue string) queueKeys {
	return queueKeys{
		list:       queue,
		data:       queue + ":data",
		processing: queue + ":processing",
		completed:  queue + ":completed",
		failed:     queue + ":failed",
		results:    queue + ":results",
		errors:     queue + ":errors",
		events:     queue + ":events",
	}
}

// decodeRedisJob parses a job hash entry.
func decodeRedisJob(raw string) (*RedisJobData, error) {
	var job RedisJobData
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Type != "" && job.Type != TaskTypeValidateDocument {
		return nil, fmt.Errorf("unexpected job type %q", job.Type)
	}
	if err := job.Payload.Validate(); err != nil {
		return &job, err
	}
	return &job, nil
}

// shouldRetry reports whether a failed job goes back on the list.
func shouldRetry(job *RedisJobData, err error) bool {
	return !isPermanent(err) && job.Attempts < job.MaxRetries
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	runner *jobRunner
	config *RedisConsumerConfig
	keys   queueKeys
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "docvalidate:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("redis-consumer")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: client,
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		keys:   keysFor(cfg.QueueName),
		logger: logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log := c.logger.With("worker", id)
	log.Debug("Worker started")

	for {
		select {
		case <-c.ctx.Done():
			log.Debug("Worker stopping")
			return
		default:
		}

		if err := c.processNextJob(); err != nil {
			if errors.Is(err, errNoJobs) || c.ctx.Err() != nil {
				continue
			}
			log.Warn("Worker error", "error", err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	// Block for up to 5 seconds waiting for a job
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.keys.list).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	raw, err := c.client.HGet(c.ctx, c.keys.data, id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", id, err)
	}

	job, err := decodeRedisJob(raw)
	if err != nil {
		c.markFailed(id, map[string]interface{}{"error": err.Error(), "error_code": "INVALID_PAYLOAD"})
		return fmt.Errorf("rejected job %s: %w", id, err)
	}

	c.markProcessing(job.Payload.JobID)

	// Processing and failure updates run on a context that outlives Stop so
	// an in-flight job still records its outcome.
	processResult, err := c.runner.run(c.statusCtx(), &job.Payload)
	if err != nil {
		job.Attempts++
		if shouldRetry(job, err) {
			return c.requeue(id, job)
		}

		c.markFailed(job.Payload.JobID, map[string]interface{}{
			"error":    err.Error(),
			"attempts": job.Attempts,
		})
		return nil
	}

	c.markCompleted(job.Payload.JobID, processResult)
	return nil
}

// statusCtx is used for writes that must land even after Stop.
func (c *RedisConsumer) statusCtx() context.Context {
	return context.WithoutCancel(c.ctx)
}

// retryEntry prepares the job hash entry for another attempt under the
// list entry it was popped from.
func retryEntry(id string, job *RedisJobData) ([]byte, error) {
	job.ID = id
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job %s: %w", id, err)
	}
	return data, nil
}

// requeue writes the bumped attempt count and pushes the job back in one
// transaction. A job that cannot be re-queued is recorded as failed.
func (c *RedisConsumer) requeue(id string, job *RedisJobData) error {
	ctx := c.statusCtx()

	data, err := retryEntry(id, job)
	if err == nil {
		pipe := c.client.TxPipeline()
		pipe.HSet(ctx, c.keys.data, id, data)
		pipe.LPush(ctx, c.keys.list, id)
		_, err = pipe.Exec(ctx)
	}
	if err != nil {
		c.markFailed(job.Payload.JobID, map[string]interface{}{
			"error":    fmt.Sprintf("re-queue failed: %v", err),
			"attempts": job.Attempts,
		})
		return fmt.Errorf("failed to re-queue job %s: %w", id, err)
	}

	c.logger.Info("Job re-queued for retry",
		"job_id", job.Payload.JobID,
		"attempt", job.Attempts,
		"max_retries", job.MaxRetries)
	return nil
}

func (c *RedisConsumer) markProcessing(jobID string) {
	ctx := c.statusCtx()
	c.client.SAdd(ctx, c.keys.processing, jobID)
	c.publish(ctx, jobID, StatusProcessing)
}

func (c *RedisConsumer) markCompleted(jobID string, result *processor.ProcessResult) {
	ctx := c.statusCtx()
	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, c.keys.processing, jobID)
	pipe.SAdd(ctx, c.keys.completed, jobID)
	if data, err := json.Marshal(result); err == nil {
		pipe.HSet(ctx, c.keys.results, jobID, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to record completed job", "job_id", jobID, "error", err)
	}
	c.publish(ctx, jobID, StatusCompleted)
}

func (c *RedisConsumer) markFailed(jobID string, details map[string]interface{}) {
	ctx := c.statusCtx()
	pipe := c.client.TxPipeline()
	pipe.SRem(ctx, c.keys.processing, jobID)
	pipe.SAdd(ctx, c.keys.failed, jobID)
	if data, err := json.Marshal(details); err == nil {
		pipe.HSet(ctx, c.keys.errors, jobID, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to record failed job", "job_id", jobID, "error", err)
	}
	c.publish(ctx, jobID, StatusFailed)
}

// publish emits a job event for WebSocket streaming
func (c *RedisConsumer) publish(ctx context.Context, jobID, status string) {
	eventData, err := json.Marshal(jobEvent(jobID, status, time.Now()))
	if err != nil {
		return
	}
	if err := c.client.Publish(ctx, c.keys.events, eventData).Err(); err != nil {
		c.logger.Debug("Failed to publish job event", "job_id", jobID, "error", err)
	}
}

func jobEvent(jobID, status string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": at.Format(time.RFC3339),
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.keys.list)
	processing := pipe.SCard(ctx, c.keys.processing)
	completed := pipe.SCard(ctx, c.keys.completed)
	failed := pipe.SCard(ctx, c.keys.failed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
