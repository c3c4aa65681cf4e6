/**
 * Document Processor for the Document Validation Worker
 *
 * Orchestrates document validation:
 * - Text extraction (serialized Tesseract OCR for images, text layer for PDFs)
 * - Simple matching of tilde-delimited expected values
 * - Advanced field matching with synonyms, numeric normalization and similarity
 * - PostgreSQL persistence of validation results
 */

package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	workerrors "github.com/adverant/nexus/docvalidate-worker/internal/errors"
	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
	"github.com/adverant/nexus/docvalidate-worker/internal/matching"
	"github.com/adverant/nexus/docvalidate-worker/internal/storage"
	"github.com/google/uuid"
)

// Mode selects the matcher applied to extracted text.
type Mode string

const (
	ModeSimple   Mode = "simple"
	ModeAdvanced Mode = "advanced"
)

// DocumentProcessorInterface defines the interface for document processing
type DocumentProcessorInterface interface {
	ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// JobStore persists job progress and results.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
	SaveValidation(ctx context.Context, rec *storage.ValidationRecord) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Extractor   Extractor
	MaxFileSize int64
	Matching    matching.Options
	Store       JobStore // optional
	HTTPClient  *http.Client
	Logger      *logging.Logger
}

// ProcessRequest represents a document validation request
type ProcessRequest struct {
	JobID      string
	UserID     string
	Filename   string
	MimeType   string
	FileSize   int64
	FileURL    string
	FileBuffer []byte
	Metadata   map[string]interface{}

	Mode           Mode
	ExpectedValues []string
	FormData       matching.FormData
	FieldSynonyms  matching.FieldSynonyms
	NumericFields  []string
}

// ProcessResult represents the validation result of one job
type ProcessResult struct {
	JobID            string                     `json:"jobId"`
	Mode             Mode                       `json:"mode"`
	OCR              ExtractionResult           `json:"ocr"`
	Score            *matching.MatchResult      `json:"score,omitempty"`
	Validation       *matching.ValidationResult `json:"validation,omitempty"`
	ProcessingTimeMs int64                      `json:"processingTimeMs"`
}

// OverallScore is the headline percentage for either mode.
func (r *ProcessResult) OverallScore() float64 {
	switch {
	case r.Score != nil:
		return float64(r.Score.Percentage)
	case r.Validation != nil:
		return r.Validation.OverallScore
	}
	return 0
}

// ValidateResponse is the simple-mode result: raw extraction plus score.
type ValidateResponse struct {
	OCR   ExtractionResult     `json:"ocr" yaml:"ocr"`
	Score matching.MatchResult `json:"score" yaml:"score"`
}

// AdvancedResponse is the advanced-mode result.
type AdvancedResponse struct {
	OCR    ExtractionResult          `json:"ocr" yaml:"ocr"`
	Result matching.ValidationResult `json:"result" yaml:"result"`
}

// DocumentProcessor handles document validation
type DocumentProcessor struct {
	config     *ProcessorConfig
	extractor  Extractor
	store      JobStore
	httpClient *http.Client
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &DocumentProcessor{
		config:     cfg,
		extractor:  cfg.Extractor,
		store:      cfg.Store,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Validate extracts text and scores it against the expected values. A
// failed extraction is scored against empty text, so both halves are
// always present.
func (p *DocumentProcessor) Validate(ctx context.Context, doc SourceDocument, expected []string) ValidateResponse {
	ocr := p.extractor.Extract(ctx, doc)
	return ValidateResponse{
		OCR:   ocr,
		Score: matching.Match(usableText(ocr), expected),
	}
}

// ValidateAdvanced extracts text and classifies each form field. Extra
// numeric fields extend the configured ones for this call only.
func (p *DocumentProcessor) ValidateAdvanced(ctx context.Context, doc SourceDocument, form matching.FormData, synonyms matching.FieldSynonyms, numericFields ...string) AdvancedResponse {
	ocr := p.extractor.Extract(ctx, doc)

	opts := p.config.Matching
	if len(numericFields) > 0 {
		opts.NumericFields = append(append([]string{}, opts.NumericFields...), numericFields...)
	}

	return AdvancedResponse{
		OCR:    ocr,
		Result: matching.NewValidator(opts).Validate(usableText(ocr), form, synonyms),
	}
}

// ProcessDocument runs one validation job. Only input problems return an
// error; extraction failures are part of the result.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	if req.JobID == "" {
		req.JobID = uuid.New().String()
	}
	log := p.logger.With("job_id", req.JobID)

	mode := req.Mode
	if mode == "" {
		mode = ModeSimple
	}

	// Step 1: Reject requests with nothing to compare
	switch mode {
	case ModeSimple:
		if err := matching.CheckExpectedValues(req.ExpectedValues); err != nil {
			return nil, workerrors.NewEmptyInputError(req.JobID, "expected values")
		}
	case ModeAdvanced:
		if !hasFormValue(req.FormData) {
			return nil, workerrors.NewEmptyInputError(req.JobID, "form data")
		}
	default:
		return nil, workerrors.NewInvalidPayloadError(req.JobID, fmt.Errorf("unknown validation mode %q", mode))
	}

	// Step 2: Load file and enforce the size limit before extraction
	if err := CheckSize(req.JobID, req.FileSize, p.config.MaxFileSize); err != nil {
		return nil, err
	}
	fileData, err := p.loadFile(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	if err := CheckSize(req.JobID, int64(len(fileData)), p.config.MaxFileSize); err != nil {
		return nil, err
	}

	doc, err := NewSourceDocument(req.Filename, req.MimeType, fileData)
	if err != nil {
		return nil, workerrors.NewEmptyInputError(req.JobID, "file content")
	}
	log.Info("Validating document",
		"filename", doc.Name(),
		"mime_type", doc.MIMEType(),
		"kind", doc.Kind().String(),
		"size", doc.Size(),
		"mode", string(mode))

	// Step 3: Extract and match
	result := &ProcessResult{JobID: req.JobID, Mode: mode}
	switch mode {
	case ModeSimple:
		resp := p.Validate(ctx, doc, req.ExpectedValues)
		result.OCR = resp.OCR
		result.Score = &resp.Score
	case ModeAdvanced:
		resp := p.ValidateAdvanced(ctx, doc, req.FormData, req.FieldSynonyms, req.NumericFields...)
		result.OCR = resp.OCR
		result.Validation = &resp.Result
	}
	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	log.Info("Validation complete",
		"extraction_success", result.OCR.Success,
		"confidence", result.OCR.Confidence,
		"score", result.OverallScore(),
		"duration_ms", result.ProcessingTimeMs)

	// Step 4: Persist. A storage failure does not invalidate the result.
	if p.store != nil {
		if err := p.store.SaveValidation(ctx, toRecord(req, doc, result)); err != nil {
			log.Warn("Failed to persist validation result", "error", workerrors.NewStorageFailedError(req.JobID, err))
		}
	}

	return result, nil
}

// UpdateJobStatus updates job status in the configured store
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Metadata: metadata,
	}

	if metadata != nil {
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if code, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = code
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = errorMsg
		} else if msg, ok := metadata["message"].(string); ok && update.ErrorCode != "" {
			update.ErrorMessage = msg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// loadFile loads file from URL or buffer
func (p *DocumentProcessor) loadFile(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	if len(req.FileBuffer) > 0 {
		p.logger.Debug("Using file buffer", "job_id", req.JobID, "bytes", len(req.FileBuffer))
		return req.FileBuffer, nil
	}

	if req.FileURL != "" {
		p.logger.Info("Downloading file", "job_id", req.JobID, "url", req.FileURL)
		return p.downloadFileFromURL(ctx, req.JobID, req.FileURL)
	}

	return nil, workerrors.NewEmptyInputError(req.JobID, "file source (buffer or URL)")
}

// downloadFileFromURL downloads a file with exponential backoff between
// attempts. Bodies larger than the size limit are rejected.
func (p *DocumentProcessor) downloadFileFromURL(ctx context.Context, jobID string, fileURL string) ([]byte, error) {
	const (
		maxRetries     = 4
		initialBackoff = 500 * time.Millisecond
		maxBackoff     = 8 * time.Second
	)

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxRetries; attempt++ {
		data, retry, err := p.downloadOnce(ctx, jobID, fileURL)
		if err == nil {
			p.logger.Info("Download successful", "job_id", jobID, "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		if !retry {
			return nil, err
		}

		lastErr = err
		p.logger.Warn("Download attempt failed", "job_id", jobID, "attempt", attempt, "error", err)

		if attempt < maxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return nil, fmt.Errorf("failed to download file after %d attempts: %w", maxRetries, lastErr)
}

func (p *DocumentProcessor) downloadOnce(ctx context.Context, jobID string, fileURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid file URL: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Client errors will not change on retry.
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	limit := p.config.MaxFileSize
	if limit > 0 && resp.ContentLength > limit {
		return nil, false, workerrors.NewFileTooLargeError(jobID, resp.ContentLength, limit)
	}

	reader := io.Reader(resp.Body)
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, false, workerrors.NewFileTooLargeError(jobID, int64(len(data)), limit)
	}

	return data, false, nil
}

func usableText(ocr ExtractionResult) string {
	if !ocr.Success {
		return ""
	}
	return ocr.Text
}

func hasFormValue(form matching.FormData) bool {
	for _, v := range form {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func toRecord(req *ProcessRequest, doc SourceDocument, result *ProcessResult) *storage.ValidationRecord {
	rec := &storage.ValidationRecord{
		JobID:                 req.JobID,
		UserID:                req.UserID,
		Filename:              doc.Name(),
		MimeType:              doc.MIMEType(),
		FileSize:              doc.Size(),
		Mode:                  string(result.Mode),
		ExtractionSuccess:     result.OCR.Success,
		ExtractionMethod:      string(result.OCR.Method),
		Confidence:            result.OCR.Confidence,
		PagesProcessed:        result.OCR.PagesProcessed,
		NeedsManualConversion: result.OCR.NeedsManualConversion,
		ExtractionError:       result.OCR.Error,
		Score:                 result.OverallScore(),
		ProcessingTimeMs:      result.ProcessingTimeMs,
	}

	switch {
	case result.Score != nil:
		rec.Found = result.Score.Found
		rec.Total = result.Score.Total
		rec.Missing = result.Score.MissingValues
		rec.Result = result.Score
	case result.Validation != nil:
		rec.Found = len(result.Validation.Matches)
		rec.Total = result.Validation.Evaluated
		for _, m := range result.Validation.Mismatches {
			rec.Missing = append(rec.Missing, m.Field)
		}
		rec.Result = result.Validation
	}

	return rec
}
