package queue

import (
	"context"
	"errors"
	"time"

	workerrors "github.com/adverant/nexus/docvalidate-worker/internal/errors"
	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	defaultProcessingTimeout = 5 * time.Minute
)

// jobRunner executes one validation job under the processing timeout and
// reports its status transitions to the processor's store.
type jobRunner struct {
	processor processor.DocumentProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(p processor.DocumentProcessorInterface, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &jobRunner{processor: p, timeout: timeout, logger: logger}
}

// run processes the payload. The returned error is already a
// ProcessingError when its cause is known.
func (r *jobRunner) run(ctx context.Context, payload *JobPayload) (*processor.ProcessResult, error) {
	startTime := time.Now()
	log := r.logger.With("job_id", payload.JobID)

	log.Info("Processing document",
		"filename", payload.Filename,
		"size", payload.FileSize,
		"user", payload.UserID,
		"mode", payload.Mode)

	// Ensures the job row exists before processing starts.
	if err := r.processor.UpdateJobStatus(ctx, payload.JobID, StatusProcessing, 0, map[string]interface{}{
		"filename": payload.Filename,
		"mimeType": payload.MimeType,
		"fileSize": payload.FileSize,
		"userId":   payload.UserID,
	}); err != nil {
		log.Warn("Failed to update status to processing", "error", err)
	}

	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.processor.ProcessDocument(processCtx, payload.ToProcessRequest())
	duration := time.Since(startTime)

	if err != nil {
		var failure map[string]interface{}
		var perr *workerrors.ProcessingError

		switch {
		case errors.Is(processCtx.Err(), context.DeadlineExceeded):
			log.Error("Processing timed out", "duration", duration, "timeout", r.timeout)
			timeoutErr := workerrors.NewProcessingTimeoutError(payload.JobID, r.timeout, err)
			failure = timeoutErr.ToMap()
			err = timeoutErr
		case errors.As(err, &perr):
			log.Warn("Job rejected", "error_code", string(perr.Code), "error", perr.Message)
			failure = perr.ToMap()
		default:
			log.Error("Processing failed", "duration", duration, "error", err)
			failure = map[string]interface{}{"error": err.Error()}
		}
		failure["processingTime"] = duration.Milliseconds()

		if updateErr := r.processor.UpdateJobStatus(ctx, payload.JobID, StatusFailed, 100, failure); updateErr != nil {
			log.Warn("Failed to update status to failed", "error", updateErr)
		}
		return nil, err
	}

	log.Info("Processing completed",
		"duration", duration,
		"extraction_success", result.OCR.Success,
		"confidence", result.OCR.Confidence,
		"score", result.OverallScore())

	completed := map[string]interface{}{
		"mode":              string(result.Mode),
		"score":             result.OverallScore(),
		"confidence":        result.OCR.Confidence,
		"extractionSuccess": result.OCR.Success,
		"extractionError":   result.OCR.Error,
		"processingTime":    duration.Milliseconds(),
	}
	if perr := extractionFailure(payload, result.OCR); perr != nil {
		for k, v := range perr.ToMap() {
			completed[k] = v
		}
	}

	if err := r.processor.UpdateJobStatus(ctx, payload.JobID, StatusCompleted, 100, completed); err != nil {
		log.Warn("Failed to update status to completed", "error", err)
	}

	return result, nil
}

// extractionFailure explains a zero score caused by failed extraction. The
// job still completes; the code and message land on the job row.
func extractionFailure(payload *JobPayload, ocr processor.ExtractionResult) *workerrors.ProcessingError {
	switch {
	case ocr.Success:
		return nil
	case ocr.NeedsManualConversion:
		return workerrors.NewPDFNeedsConversionError(payload.JobID, payload.Filename)
	default:
		return workerrors.NewExtractionFailedError(payload.JobID, string(ocr.Method), ocr.Error)
	}
}

// isPermanent reports whether retrying the job cannot change the outcome.
func isPermanent(err error) bool {
	var perr *workerrors.ProcessingError
	if !errors.As(err, &perr) {
		return false
	}
	switch perr.Code {
	case workerrors.ErrorEmptyInput,
		workerrors.ErrorInvalidPayload,
		workerrors.ErrorFileTooLarge:
		return true
	}
	return false
}
