/**
 * PostgreSQL Client for the Document Validation Worker
 *
 * Handles job status tracking and validation result persistence.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	Progress         int
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Metadata         map[string]interface{}
}

// ValidationRecord is the persisted outcome of one validation job.
type ValidationRecord struct {
	JobID                 string
	UserID                string
	Filename              string
	MimeType              string
	FileSize              int64
	Mode                  string
	ExtractionSuccess     bool
	ExtractionMethod      string
	Confidence            float64
	PagesProcessed        int
	NeedsManualConversion bool
	ExtractionError       string
	Score                 float64
	Found                 int
	Total                 int
	Missing               []string
	Result                interface{}
	ProcessingTimeMs      int64
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS docvalidate;

	CREATE TABLE IF NOT EXISTS docvalidate.validation_jobs (
		id                      TEXT PRIMARY KEY,
		user_id                 TEXT NOT NULL DEFAULT 'anonymous',
		filename                TEXT NOT NULL DEFAULT 'unknown',
		mime_type               TEXT NOT NULL DEFAULT 'application/octet-stream',
		file_size               BIGINT NOT NULL DEFAULT 0,
		mode                    TEXT,
		status                  TEXT NOT NULL,
		progress                INTEGER NOT NULL DEFAULT 0,
		extraction_success      BOOLEAN,
		extraction_method       TEXT,
		confidence              NUMERIC(5,2),
		pages_processed         INTEGER,
		needs_manual_conversion BOOLEAN NOT NULL DEFAULT FALSE,
		extraction_error        TEXT,
		score                   NUMERIC(5,2),
		found                   INTEGER,
		total                   INTEGER,
		missing                 TEXT[],
		result                  JSONB,
		processing_time_ms      BIGINT,
		error_code              TEXT,
		error_message           TEXT,
		metadata                JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS validation_jobs_user_idx ON docvalidate.validation_jobs (user_id, created_at DESC);
`

// sanitizePercent rounds a 0-100 value to 2 decimal places and clamps it
// so it always fits NUMERIC(5,2).
func sanitizePercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return math.Round(v*100) / 100
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the schema and table when missing.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const upsertStatusQuery = `
	INSERT INTO docvalidate.validation_jobs (
		id, status, progress, processing_time_ms,
		error_code, error_message, metadata,
		user_id, filename, mime_type, file_size,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, NULLIF($4, 0),
		NULLIF($5, ''), NULLIF($6, ''), COALESCE($7::jsonb, '{}'::jsonb),
		COALESCE(NULLIF($8, ''), 'anonymous'), COALESCE(NULLIF($9, ''), 'unknown'),
		COALESCE(NULLIF($10, ''), 'application/octet-stream'), $11,
		NOW(), NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		progress = EXCLUDED.progress,
		processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, docvalidate.validation_jobs.processing_time_ms),
		error_code = EXCLUDED.error_code,
		error_message = EXCLUDED.error_message,
		metadata = docvalidate.validation_jobs.metadata || EXCLUDED.metadata,
		user_id = CASE WHEN $8 = '' THEN docvalidate.validation_jobs.user_id ELSE EXCLUDED.user_id END,
		filename = CASE WHEN $9 = '' THEN docvalidate.validation_jobs.filename ELSE EXCLUDED.filename END,
		mime_type = CASE WHEN $10 = '' THEN docvalidate.validation_jobs.mime_type ELSE EXCLUDED.mime_type END,
		file_size = CASE WHEN $11 = 0 THEN docvalidate.validation_jobs.file_size ELSE EXCLUDED.file_size END,
		updated_at = NOW()
	RETURNING id
`

// UpdateJobStatus updates job status in the database, creating the row on
// the first update.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := marshalJSONB(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var filename, mimeType, userID string
	var fileSize int64
	if update.Metadata != nil {
		filename, _ = update.Metadata["filename"].(string)
		mimeType, _ = update.Metadata["mimeType"].(string)
		userID, _ = update.Metadata["userId"].(string)
		switch fs := update.Metadata["fileSize"].(type) {
		case int64:
			fileSize = fs
		case int:
			fileSize = int64(fs)
		case float64:
			fileSize = int64(fs)
		}
	}

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		upsertStatusQuery,
		update.JobID,            // $1
		update.Status,           // $2
		update.Progress,         // $3
		update.ProcessingTimeMs, // $4
		update.ErrorCode,        // $5
		update.ErrorMessage,     // $6
		metadataJSON,            // $7
		userID,                  // $8
		filename,                // $9
		mimeType,                // $10
		fileSize,                // $11
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

const saveValidationQuery = `
	INSERT INTO docvalidate.validation_jobs (
		id, user_id, filename, mime_type, file_size, mode, status, progress,
		extraction_success, extraction_method, confidence, pages_processed,
		needs_manual_conversion, extraction_error,
		score, found, total, missing, result, processing_time_ms,
		created_at, updated_at
	) VALUES (
		$1, COALESCE(NULLIF($2, ''), 'anonymous'), COALESCE(NULLIF($3, ''), 'unknown'),
		COALESCE(NULLIF($4, ''), 'application/octet-stream'), $5, $6, 'completed', 100,
		$7, $8, $9::NUMERIC(5,2), $10,
		$11, NULLIF($12, ''),
		$13::NUMERIC(5,2), $14, $15, $16, $17::jsonb, $18,
		NOW(), NOW()
	)
	ON CONFLICT (id) DO UPDATE SET
		mode = EXCLUDED.mode,
		status = EXCLUDED.status,
		progress = EXCLUDED.progress,
		extraction_success = EXCLUDED.extraction_success,
		extraction_method = EXCLUDED.extraction_method,
		confidence = EXCLUDED.confidence,
		pages_processed = EXCLUDED.pages_processed,
		needs_manual_conversion = EXCLUDED.needs_manual_conversion,
		extraction_error = EXCLUDED.extraction_error,
		score = EXCLUDED.score,
		found = EXCLUDED.found,
		total = EXCLUDED.total,
		missing = EXCLUDED.missing,
		result = EXCLUDED.result,
		processing_time_ms = EXCLUDED.processing_time_ms,
		error_code = NULL,
		error_message = NULL,
		updated_at = NOW()
`

// SaveValidation stores the outcome of a validation job.
func (p *PostgresClient) SaveValidation(ctx context.Context, rec *ValidationRecord) error {
	if rec == nil || rec.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	resultJSON, err := marshalJSONB(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	missing := rec.Missing
	if missing == nil {
		missing = []string{}
	}

	_, err = p.db.ExecContext(
		ctx,
		saveValidationQuery,
		rec.JobID,                       // $1
		rec.UserID,                      // $2
		rec.Filename,                    // $3
		rec.MimeType,                    // $4
		rec.FileSize,                    // $5
		rec.Mode,                        // $6
		rec.ExtractionSuccess,           // $7
		rec.ExtractionMethod,            // $8
		sanitizePercent(rec.Confidence), // $9
		rec.PagesProcessed,              // $10
		rec.NeedsManualConversion,       // $11
		rec.ExtractionError,             // $12
		sanitizePercent(rec.Score),      // $13
		rec.Found,                       // $14
		rec.Total,                       // $15
		pq.Array(missing),               // $16
		resultJSON,                      // $17
		rec.ProcessingTimeMs,            // $18
	)
	if err != nil {
		return fmt.Errorf("failed to save validation (job=%s): %w", rec.JobID, err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, user_id, filename, mime_type, file_size, mode, status, progress,
			extraction_success, confidence, needs_manual_conversion,
			score, found, total, missing, result,
			processing_time_ms, error_code, error_message,
			created_at, updated_at
		FROM docvalidate.validation_jobs
		WHERE id = $1
	`

	var (
		id, userID, filename, mimeType, status string
		fileSize                               int64
		progress                               int
		mode                                   sql.NullString
		extractionSuccess                      sql.NullBool
		confidence, score                      sql.NullFloat64
		needsConversion                        bool
		found, total                           sql.NullInt64
		missing                                pq.StringArray
		resultJSON                             []byte
		processingTimeMs                       sql.NullInt64
		errorCode, errorMessage                sql.NullString
		createdAt, updatedAt                   time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&id, &userID, &filename, &mimeType, &fileSize, &mode, &status, &progress,
		&extractionSuccess, &confidence, &needsConversion,
		&score, &found, &total, &missing, &resultJSON,
		&processingTimeMs, &errorCode, &errorMessage,
		&createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	result := map[string]interface{}{
		"id":                    id,
		"userId":                userID,
		"filename":              filename,
		"mimeType":              mimeType,
		"fileSize":              fileSize,
		"status":                status,
		"progress":              progress,
		"needsManualConversion": needsConversion,
		"missing":               []string(missing),
		"createdAt":             createdAt,
		"updatedAt":             updatedAt,
	}

	if mode.Valid {
		result["mode"] = mode.String
	}
	if extractionSuccess.Valid {
		result["extractionSuccess"] = extractionSuccess.Bool
	}
	if confidence.Valid {
		result["confidence"] = confidence.Float64
	}
	if score.Valid {
		result["score"] = score.Float64
	}
	if found.Valid {
		result["found"] = found.Int64
	}
	if total.Valid {
		result["total"] = total.Int64
	}
	if len(resultJSON) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(resultJSON, &decoded); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		result["result"] = decoded
	}
	if processingTimeMs.Valid {
		result["processingTimeMs"] = processingTimeMs.Int64
	}
	if errorCode.Valid {
		result["errorCode"] = errorCode.String
	}
	if errorMessage.Valid {
		result["errorMessage"] = errorMessage.String
	}

	return result, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}

func marshalJSONB(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return []byte("{}"), nil
	}
	return sanitizeJSONForPostgres(raw), nil
}
