package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingError_ErrorIncludesCause(t *testing.T) {
	cause := fmt.Errorf("context deadline exceeded")
	err := NewProcessingTimeoutError("job-1", 5*time.Second, cause)

	assert.Equal(t, "PROCESSING_TIMEOUT: Processing timed out after 5s (caused by: context deadline exceeded)", err.Error())
	assert.Same(t, cause, stderrors.Unwrap(err))
}

func TestProcessingError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", NewFileTooLargeError("job-2", 20, 10))

	assert.True(t, stderrors.Is(wrapped, &ProcessingError{Code: ErrorFileTooLarge}))
	assert.False(t, stderrors.Is(wrapped, &ProcessingError{Code: ErrorEmptyInput}))

	var perr *ProcessingError
	require.True(t, stderrors.As(wrapped, &perr))
	assert.Equal(t, "job-2", perr.JobID)
}

func TestProcessingError_ToMap(t *testing.T) {
	err := NewFileTooLargeError("job-3", 2048, 1024)
	m := err.ToMap()

	assert.Equal(t, "FILE_TOO_LARGE", m["error_code"])
	assert.Equal(t, int64(2048), m["file_size"])
	assert.Equal(t, int64(1024), m["size_limit"])
	assert.NotContains(t, m, "cause")

	withCause := NewStorageFailedError("job-4", fmt.Errorf("connection refused")).ToMap()
	assert.Equal(t, "connection refused", withCause["cause"])
}

func TestNewPDFNeedsConversionError(t *testing.T) {
	err := NewPDFNeedsConversionError("job-5", "scan.pdf")

	assert.Equal(t, ErrorPDFNeedsConversion, err.Code)
	assert.Equal(t, "scan.pdf", err.Details["filename"])
}
