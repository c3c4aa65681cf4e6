/**
 * Storage Manager for the Document Validation Worker
 *
 * Owns the PostgreSQL client and prepares the schema on startup.
 */

package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// StorageManager coordinates persistence of job status and validation results
type StorageManager struct {
	postgres *PostgresClient
}

// NewStorageManager connects to PostgreSQL and ensures the schema exists
func NewStorageManager(postgresURL string) (*StorageManager, error) {
	postgres, err := NewPostgresClient(postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := postgres.EnsureSchema(ctx); err != nil {
		postgres.Close()
		return nil, err
	}

	return &StorageManager{postgres: postgres}, nil
}

// UpdateJobStatus updates job status in PostgreSQL
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.postgres.UpdateJobStatus(ctx, update)
}

// SaveValidation persists a completed validation
func (sm *StorageManager) SaveValidation(ctx context.Context, rec *ValidationRecord) error {
	return sm.postgres.SaveValidation(ctx, rec)
}

// GetJobByID retrieves job by ID
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return sm.postgres.GetJobByID(ctx, jobID)
}

// Ping checks database connectivity
func (sm *StorageManager) Ping(ctx context.Context) error {
	return sm.postgres.Ping(ctx)
}

// GetStats returns connection pool statistics
func (sm *StorageManager) GetStats() map[string]interface{} {
	pgStats := sm.postgres.GetStats()

	return map[string]interface{}{
		"postgres": map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		},
	}
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil {
			return fmt.Errorf("failed to close PostgreSQL: %w", err)
		}
	}
	return nil
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes escape sequences that JSONB rejects.
// OCR text occasionally carries NUL and other control characters.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
