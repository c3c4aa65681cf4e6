/**
 * Asynq Queue Consumer for the Document Validation Worker
 *
 * Consumes "validate-document" tasks from Redis through Asynq and runs
 * them through the document processor. Producer enqueues the same tasks.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	workerrors "github.com/adverant/nexus/docvalidate-worker/internal/errors"
	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
	"github.com/hibiken/asynq"
)

// TaskTypeValidateDocument is the Asynq task type for validation jobs.
const TaskTypeValidateDocument = "validate-document"

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *jobRunner
	config *ConsumerConfig
	logger *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // Processing timeout in milliseconds (default: 300000 = 5 minutes)
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("asynq-consumer")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: logger.Sugar(),
		},
	)

	consumer := &Consumer{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
	}

	consumer.mux.HandleFunc(TaskTypeValidateDocument, consumer.handleValidateDocument)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleValidateDocument processes a document validation task. Jobs that
// cannot succeed on retry are marked with asynq.SkipRetry.
func (c *Consumer) handleValidateDocument(ctx context.Context, task *asynq.Task) error {
	payload, err := decodePayload(task.Payload())
	if err != nil {
		jobID := ""
		if payload != nil {
			jobID = payload.JobID
		}
		perr := workerrors.NewInvalidPayloadError(jobID, err)
		c.logger.Error("Rejecting task", "error", perr)
		return fmt.Errorf("%v: %w", perr, asynq.SkipRetry)
	}

	if _, err := c.runner.run(ctx, payload); err != nil {
		if isPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("document validation failed: %w", err)
	}

	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"backend":     "asynq",
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}

// Producer submits validation tasks to the Asynq queue.
type Producer struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
}

// NewProducer creates a producer for the given Redis URL and queue.
func NewProducer(redisURL, queueName string) (*Producer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	return &Producer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		maxRetry:  3,
	}, nil
}

// NewValidationTask builds the Asynq task for a payload.
func NewValidationTask(payload *JobPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return asynq.NewTask(TaskTypeValidateDocument, data), nil
}

// EnqueueValidation submits a validation job. The job ID doubles as the
// task ID, so a job cannot be queued twice while it is still pending.
func (p *Producer) EnqueueValidation(ctx context.Context, payload *JobPayload) (*asynq.TaskInfo, error) {
	task, err := NewValidationTask(payload)
	if err != nil {
		return nil, err
	}

	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queueName),
		asynq.MaxRetry(p.maxRetry),
		asynq.TaskID(payload.JobID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}
	return info, nil
}

// Close closes the underlying Asynq client
func (p *Producer) Close() error {
	return p.client.Close()
}
