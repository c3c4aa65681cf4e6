package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	workerrors "github.com/adverant/nexus/docvalidate-worker/internal/errors"
	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
	"github.com/adverant/nexus/docvalidate-worker/internal/matching"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusUpdate struct {
	status   string
	metadata map[string]interface{}
}

type fakeProcessor struct {
	mu       sync.Mutex
	updates  []statusUpdate
	requests []*processor.ProcessRequest
	result   *processor.ProcessResult
	err      error
	block    bool
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{status: status, metadata: metadata})
	return nil
}

func (f *fakeProcessor) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.updates))
	for _, u := range f.updates {
		out = append(out, u.status)
	}
	return out
}

func newTestConsumer(p processor.DocumentProcessorInterface, timeoutMs int64) *Consumer {
	return &Consumer{
		runner: newJobRunner(p, timeoutMs, logging.NewNopLogger()),
		config: &ConsumerConfig{QueueName: "docvalidate:jobs", Concurrency: 1},
		logger: logging.NewNopLogger(),
	}
}

func task(t *testing.T, p *JobPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeValidateDocument, data)
}

func TestHandleValidateDocument_Completed(t *testing.T) {
	fp := &fakeProcessor{result: &processor.ProcessResult{
		JobID: "j1",
		Mode:  processor.ModeSimple,
		OCR:   processor.ExtractionResult{Success: true, Confidence: 92},
		Score: &matching.MatchResult{Percentage: 75, Found: 3, Total: 4},
	}}
	c := newTestConsumer(fp, 0)

	err := c.handleValidateDocument(context.Background(), task(t, &JobPayload{
		JobID:          "j1",
		FileBuffer:     []byte("img"),
		ExpectedValues: "a~b",
	}))

	require.NoError(t, err)
	assert.Equal(t, []string{StatusProcessing, StatusCompleted}, fp.statuses())
	require.Len(t, fp.requests, 1)
	assert.Equal(t, []string{"a", "b"}, fp.requests[0].ExpectedValues)
	assert.Equal(t, []byte("img"), fp.requests[0].FileBuffer)
	assert.Equal(t, 75.0, fp.updates[1].metadata["score"])
	assert.NotContains(t, fp.updates[1].metadata, "error_code")
}

func TestRun_CompletedWithFailedExtractionRecordsReason(t *testing.T) {
	cases := []struct {
		name   string
		ocr    processor.ExtractionResult
		code   string
		detail string
		value  string
	}{
		{
			name:   "pdf without text layer",
			ocr:    processor.ExtractionResult{Method: processor.MethodPDFText, Error: "no text", NeedsManualConversion: true},
			code:   "PDF_NEEDS_CONVERSION",
			detail: "filename",
			value:  "scan.pdf",
		},
		{
			name:   "ocr failure",
			ocr:    processor.ExtractionResult{Method: processor.MethodImageOCR, Error: "unreadable image"},
			code:   "EXTRACTION_FAILED",
			detail: "extraction_method",
			value:  "image-ocr",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fp := &fakeProcessor{result: &processor.ProcessResult{
				JobID: "j7",
				Mode:  processor.ModeSimple,
				OCR:   tc.ocr,
				Score: &matching.MatchResult{Total: 2, MissingValues: []string{"a", "b"}},
			}}
			r := newJobRunner(fp, 0, logging.NewNopLogger())

			_, err := r.run(context.Background(), &JobPayload{JobID: "j7", Filename: "scan.pdf", FileURL: "http://files/scan.pdf"})

			require.NoError(t, err)
			require.Equal(t, []string{StatusProcessing, StatusCompleted}, fp.statuses())
			meta := fp.updates[1].metadata
			assert.Equal(t, tc.code, meta["error_code"])
			assert.NotEmpty(t, meta["message"])
			assert.Equal(t, tc.value, meta[tc.detail])
			assert.Equal(t, false, meta["extractionSuccess"])
			assert.NotContains(t, meta, "error")
		})
	}
}

func TestHandleValidateDocument_InvalidPayloadSkipsRetry(t *testing.T) {
	fp := &fakeProcessor{}
	c := newTestConsumer(fp, 0)

	err := c.handleValidateDocument(context.Background(), asynq.NewTask(TaskTypeValidateDocument, []byte(`{"jobId":`)))

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, fp.requests)

	err = c.handleValidateDocument(context.Background(), task(t, &JobPayload{JobID: "j"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleValidateDocument_InputErrorSkipsRetry(t *testing.T) {
	fp := &fakeProcessor{err: workerrors.NewEmptyInputError("j2", "expected values")}
	c := newTestConsumer(fp, 0)

	err := c.handleValidateDocument(context.Background(), task(t, &JobPayload{JobID: "j2", FileURL: "http://files/a.png"}))

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, []string{StatusProcessing, StatusFailed}, fp.statuses())
	assert.Equal(t, "EMPTY_INPUT", fp.updates[1].metadata["error_code"])
}

func TestHandleValidateDocument_TransientErrorRetries(t *testing.T) {
	fp := &fakeProcessor{err: errors.New("connection reset")}
	c := newTestConsumer(fp, 0)

	err := c.handleValidateDocument(context.Background(), task(t, &JobPayload{JobID: "j3", FileURL: "http://files/a.png"}))

	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, "connection reset", fp.updates[1].metadata["error"])
}

func TestHandleValidateDocument_Timeout(t *testing.T) {
	fp := &fakeProcessor{block: true}
	c := newTestConsumer(fp, 20)

	start := time.Now()
	err := c.handleValidateDocument(context.Background(), task(t, &JobPayload{JobID: "j4", FileURL: "http://files/a.png"}))

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, errors.Is(err, &workerrors.ProcessingError{Code: workerrors.ErrorProcessingTimeout}))
	assert.Equal(t, "PROCESSING_TIMEOUT", fp.updates[1].metadata["error_code"])
}

func TestShouldRetry(t *testing.T) {
	job := &RedisJobData{Attempts: 1, MaxRetries: 3}
	assert.True(t, shouldRetry(job, errors.New("timeout")))
	assert.False(t, shouldRetry(job, workerrors.NewFileTooLargeError("j", 2, 1)))

	job.Attempts = 3
	assert.False(t, shouldRetry(job, errors.New("timeout")))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, isPermanent(workerrors.NewEmptyInputError("j", "file")))
	assert.True(t, isPermanent(workerrors.NewInvalidPayloadError("j", errors.New("bad json"))))
	assert.False(t, isPermanent(workerrors.NewProcessingTimeoutError("j", time.Second, nil)))
	assert.False(t, isPermanent(errors.New("connection reset")))
}

func TestRetryEntry_UsesPoppedID(t *testing.T) {
	job := &RedisJobData{Payload: JobPayload{JobID: "payload-id"}, Attempts: 1, MaxRetries: 3}

	data, err := retryEntry("list-id", job)
	require.NoError(t, err)

	var stored RedisJobData
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "list-id", stored.ID)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "payload-id", stored.Payload.JobID)
}

func TestRedisConsumer_StatusContextOutlivesStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &RedisConsumer{ctx: ctx, cancel: cancel}

	c.cancel()

	require.Error(t, c.ctx.Err())
	assert.NoError(t, c.statusCtx().Err())
}

func TestConsumer_GetStatistics(t *testing.T) {
	c := newTestConsumer(&fakeProcessor{}, 0)
	stats := c.GetStatistics()
	assert.Equal(t, "asynq", stats["backend"])
	assert.Equal(t, "docvalidate:jobs", stats["queue"])
	assert.Equal(t, 1, stats["concurrency"])
}

func TestNewValidationTask(t *testing.T) {
	tk, err := NewValidationTask(&JobPayload{JobID: "j5", FileURL: "http://files/a.png", Mode: "advanced"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeValidateDocument, tk.Type())

	payload, err := decodePayload(tk.Payload())
	require.NoError(t, err)
	assert.Equal(t, "advanced", payload.Mode)

	_, err = NewValidationTask(&JobPayload{})
	assert.Error(t, err)
}

func TestJobEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := jobEvent("j6", StatusCompleted, at)
	assert.Equal(t, "job:completed", ev["event"])
	assert.Equal(t, "j6", ev["jobId"])
	assert.Equal(t, "2024-05-01T10:00:00Z", ev["timestamp"])
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(&ConsumerConfig{QueueName: "q", Processor: &fakeProcessor{}})
	assert.Error(t, err)
	_, err = NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379", Processor: &fakeProcessor{}})
	assert.Error(t, err)
	_, err = NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379", QueueName: "q"})
	assert.Error(t, err)
}
