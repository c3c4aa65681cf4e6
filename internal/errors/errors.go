package errors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for the document validation worker
 *
 * Extraction failures never surface as Go errors; they are encoded in
 * ExtractionResult. ProcessingError is used at the job boundary only.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Processing errors
	ErrorProcessingTimeout  ErrorCode = "PROCESSING_TIMEOUT"
	ErrorExtractionFailed   ErrorCode = "EXTRACTION_FAILED"
	ErrorPDFNeedsConversion ErrorCode = "PDF_NEEDS_CONVERSION"

	// Input errors
	ErrorFileTooLarge   ErrorCode = "FILE_TOO_LARGE"
	ErrorEmptyInput     ErrorCode = "EMPTY_INPUT"
	ErrorInvalidPayload ErrorCode = "INVALID_PAYLOAD"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is matches another *ProcessingError by code, so callers can write
// errors.Is(err, &ProcessingError{Code: ErrorFileTooLarge}).
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Factory functions for common errors

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewExtractionFailedError(jobID string, method string, message string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorExtractionFailed,
		Message:   fmt.Sprintf("Text extraction failed (%s): %s", method, message),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"extraction_method": method,
		},
	}
}

func NewPDFNeedsConversionError(jobID string, filename string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPDFNeedsConversion,
		Message:   "PDF has no extractable text layer; convert it to an image and retry",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"filename": filename,
		},
	}
}

func NewFileTooLargeError(jobID string, size, limit int64) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFileTooLarge,
		Message:   fmt.Sprintf("File size %d exceeds limit of %d bytes", size, limit),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"file_size":  size,
			"size_limit": limit,
		},
	}
}

func NewEmptyInputError(jobID string, what string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEmptyInput,
		Message:   fmt.Sprintf("No %s provided", what),
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewInvalidPayloadError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidPayload,
		Message:   "Job payload could not be decoded",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store validation results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
