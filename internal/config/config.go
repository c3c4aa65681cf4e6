/**
 * Configuration for the Document Validation Worker
 *
 * Loads configuration from environment variables matching .env.nexus
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	QueueBackendRedis = "redis"
	QueueBackendAsynq = "asynq"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration
	RedisURL string

	// PostgreSQL configuration. Empty disables result persistence.
	DatabaseURL string

	// Queue configuration
	QueueBackend string
	QueueName    string

	// Worker configuration
	WorkerConcurrency int
	MaxFileSize       int64
	ProcessingTimeout int // milliseconds, whole job
	ExtractionTimeout time.Duration

	// Tesseract configuration
	TesseractLanguage string
	TessdataPrefix    string

	// Extraction tuning
	PDFTextConfidence  float64
	ExtractionCacheTTL time.Duration

	// Advanced validation tuning
	SimilarityThreshold float64
	SuggestionWeight    float64
	NumericFields       []string

	// Logging
	LogLevel string

	// Node environment
	NodeEnv string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("REDIS_URL", "redis://nexus-redis:6379")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("QUEUE_BACKEND", QueueBackendRedis)
	v.SetDefault("QUEUE_NAME", "docvalidate:jobs")
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("MAX_FILE_SIZE", 15*1024*1024) // 15MB
	v.SetDefault("PROCESSING_TIMEOUT", 300000)  // 5 minutes
	v.SetDefault("EXTRACTION_TIMEOUT", "2m")
	v.SetDefault("TESSERACT_LANGUAGE", "eng")
	v.SetDefault("TESSDATA_PREFIX", "")
	v.SetDefault("PDF_TEXT_CONFIDENCE", 95.0)
	v.SetDefault("EXTRACTION_CACHE_TTL", "10m")
	v.SetDefault("SIMILARITY_THRESHOLD", 0.6)
	v.SetDefault("SUGGESTION_WEIGHT", 0.5)
	v.SetDefault("NUMERIC_FIELDS", "amount,fee,grant_amount,year")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("NODE_ENV", "development")
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RedisURL:            v.GetString("REDIS_URL"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		QueueBackend:        strings.ToLower(v.GetString("QUEUE_BACKEND")),
		QueueName:           v.GetString("QUEUE_NAME"),
		WorkerConcurrency:   v.GetInt("WORKER_CONCURRENCY"),
		MaxFileSize:         v.GetInt64("MAX_FILE_SIZE"),
		ProcessingTimeout:   v.GetInt("PROCESSING_TIMEOUT"),
		ExtractionTimeout:   v.GetDuration("EXTRACTION_TIMEOUT"),
		TesseractLanguage:   v.GetString("TESSERACT_LANGUAGE"),
		TessdataPrefix:      v.GetString("TESSDATA_PREFIX"),
		PDFTextConfidence:   v.GetFloat64("PDF_TEXT_CONFIDENCE"),
		ExtractionCacheTTL:  v.GetDuration("EXTRACTION_CACHE_TTL"),
		SimilarityThreshold: v.GetFloat64("SIMILARITY_THRESHOLD"),
		SuggestionWeight:    v.GetFloat64("SUGGESTION_WEIGHT"),
		NumericFields:       splitList(v.GetString("NUMERIC_FIELDS")),
		LogLevel:            v.GetString("LOG_LEVEL"),
		NodeEnv:             v.GetString("NODE_ENV"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueBackend != QueueBackendRedis && c.QueueBackend != QueueBackendAsynq {
		return fmt.Errorf("QUEUE_BACKEND must be %q or %q, got %q", QueueBackendRedis, QueueBackendAsynq, c.QueueBackend)
	}

	if c.QueueName == "" {
		return fmt.Errorf("QUEUE_NAME is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxFileSize < 1024 || c.MaxFileSize > 50*1024*1024 { // 1KB to 50MB
		return fmt.Errorf("MAX_FILE_SIZE must be between 1KB and 50MB, got %d", c.MaxFileSize)
	}

	if c.ProcessingTimeout <= 0 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be positive, got %d", c.ProcessingTimeout)
	}

	if c.ExtractionTimeout <= 0 {
		return fmt.Errorf("EXTRACTION_TIMEOUT must be positive, got %v", c.ExtractionTimeout)
	}

	if c.PDFTextConfidence < 0 || c.PDFTextConfidence > 100 {
		return fmt.Errorf("PDF_TEXT_CONFIDENCE must be between 0 and 100, got %v", c.PDFTextConfidence)
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.SimilarityThreshold)
	}

	if c.SuggestionWeight < 0 || c.SuggestionWeight > 1 {
		return fmt.Errorf("SUGGESTION_WEIGHT must be in [0, 1], got %v", c.SuggestionWeight)
	}

	if c.ExtractionCacheTTL < 0 {
		return fmt.Errorf("EXTRACTION_CACHE_TTL must not be negative, got %v", c.ExtractionCacheTTL)
	}

	return nil
}

// IsDevelopment reports whether the worker runs outside production.
func (c *Config) IsDevelopment() bool {
	return c.NodeEnv != "production"
}

// ProcessingTimeoutDuration converts the millisecond job timeout.
func (c *Config) ProcessingTimeoutDuration() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// splitList splits a comma-separated list, trimming blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
