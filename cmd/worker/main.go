/**
 * Document Validation Worker - Main Entry Point
 *
 * Go worker that checks uploaded documents against user-entered values.
 *
 * Architecture:
 * - Redis LIST or Asynq consumer for the job queue
 * - Text extraction: serialized Tesseract OCR for images, text layer for PDFs
 * - Simple (expected values) and advanced (form fields) matching
 * - Optional PostgreSQL persistence for validation results
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/docvalidate-worker/internal/cache"
	"github.com/adverant/nexus/docvalidate-worker/internal/config"
	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
	"github.com/adverant/nexus/docvalidate-worker/internal/matching"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor/tesseract"
	"github.com/adverant/nexus/docvalidate-worker/internal/queue"
	"github.com/adverant/nexus/docvalidate-worker/internal/storage"
	"github.com/joho/godotenv"
)

// consumer is the common surface of the two queue backends.
type consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// redisConsumer adapts RedisConsumer to the consumer interface.
type redisConsumer struct{ *queue.RedisConsumer }

func (c redisConsumer) Start(ctx context.Context) error { return c.RedisConsumer.Start() }
func (c redisConsumer) Stop(ctx context.Context) error  { return c.RedisConsumer.Stop() }

func (c redisConsumer) Stats(ctx context.Context) (map[string]interface{}, error) {
	counts, err := c.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	stats := map[string]interface{}{"backend": "redis"}
	for k, v := range counts {
		stats[k] = v
	}
	return stats, nil
}

// asynqConsumer adapts the asynq Consumer to the consumer interface.
type asynqConsumer struct{ *queue.Consumer }

func (c asynqConsumer) Stats(ctx context.Context) (map[string]interface{}, error) {
	return c.GetStatistics(), nil
}

// logStats records queue statistics; failures only cost the log line.
func logStats(logger *logging.Logger, c consumer, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := c.Stats(ctx)
	if err != nil {
		logger.Warn("Failed to read queue statistics", "error", err)
		return
	}
	logger.Info(msg, "stats", stats)
}

func main() {
	// Load environment variables
	envErr := godotenv.Load(".env.nexus")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logging.Init(cfg.LogLevel, cfg.IsDevelopment()); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Sync()

	logger := logging.NewLogger("worker")
	if envErr != nil {
		logger.Warn(".env.nexus not found, using system environment variables")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker failed", "error", err)
		logging.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Document validation worker starting",
		"queue_backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"persistence", cfg.DatabaseURL != "")

	// Storage is optional; without it results live only in the queue backend.
	var (
		store          processor.JobStore
		storageManager *storage.StorageManager
	)
	if cfg.DatabaseURL != "" {
		sm, err := storage.NewStorageManager(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize storage manager: %w", err)
		}
		defer sm.Close()
		storageManager = sm
		store = sm
		logger.Info("Storage manager initialized", "stats", sm.GetStats())
	}

	// A zero TTL disables the extraction cache.
	var extractionCache cache.Cache
	if cfg.ExtractionCacheTTL > 0 {
		extractionCache = cache.NewMemoryCache(cfg.ExtractionCacheTTL, 2*cfg.ExtractionCacheTTL)
	}

	extractor, err := processor.NewTextExtractor(processor.ExtractorConfig{
		EngineFactory: tesseract.Factory(tesseract.Config{
			Language:       cfg.TesseractLanguage,
			TessdataPrefix: cfg.TessdataPrefix,
		}),
		PDFConfidence: cfg.PDFTextConfidence,
		Timeout:       cfg.ExtractionTimeout,
		Cache:         extractionCache,
		CacheTTL:      cfg.ExtractionCacheTTL,
		Logger:        logging.NewLogger("extractor"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize text extractor: %w", err)
	}
	defer extractor.Close()

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Extractor:   extractor,
		MaxFileSize: cfg.MaxFileSize,
		Matching: matching.Options{
			SimilarityThreshold: cfg.SimilarityThreshold,
			SuggestionWeight:    cfg.SuggestionWeight,
			NumericFields:       cfg.NumericFields,
		},
		Store:  store,
		Logger: logging.NewLogger("processor"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize document processor: %w", err)
	}

	queueConsumer, err := newConsumer(cfg, proc)
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Readiness: jobs are only taken once the store answers.
	if storageManager != nil {
		if err := ping(storageManager); err != nil {
			return fmt.Errorf("storage not ready: %w", err)
		}
	}

	if err := queueConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	logStats(logger, queueConsumer, "Worker ready, waiting for jobs")

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining")
	logStats(logger, queueConsumer, "Queue statistics at shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ProcessingTimeoutDuration()+10*time.Second)
	defer cancel()
	if err := queueConsumer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete", "ocr_queue_depth", extractor.QueueDepth())
	return nil
}

func ping(sm *storage.StorageManager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return sm.Ping(ctx)
}

func newConsumer(cfg *config.Config, proc processor.DocumentProcessorInterface) (consumer, error) {
	switch cfg.QueueBackend {
	case config.QueueBackendAsynq:
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logging.NewLogger("asynq-consumer"),
		})
		if err != nil {
			return nil, err
		}
		return asynqConsumer{c}, nil
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
			Logger:            logging.NewLogger("redis-consumer"),
		})
		if err != nil {
			return nil, err
		}
		return redisConsumer{c}, nil
	}
}
