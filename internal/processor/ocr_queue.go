package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
)

// ErrQueueClosed is reported for OCR jobs submitted after Close or still
// waiting when the queue shut down.
var ErrQueueClosed = errors.New("OCR queue is closed")

type ocrOutcome struct {
	text OCRText
	err  error
}

type ocrJob struct {
	ctx   context.Context
	image []byte
	done  chan ocrOutcome
}

// ocrQueue owns the OCR engine and runs every recognition on a single
// worker goroutine in submission order. The worker and the engine are both
// created on first use.
type ocrQueue struct {
	factory EngineFactory
	logger  *logging.Logger

	mu      sync.Mutex
	pending []*ocrJob
	closed  bool

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	// engine is touched only by the worker goroutine.
	engine OCREngine
}

func newOCRQueue(factory EngineFactory, logger *logging.Logger) *ocrQueue {
	return &ocrQueue{
		factory: factory,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// enqueue appends a job to the tail of the queue. The returned channel
// receives exactly one outcome.
func (q *ocrQueue) enqueue(ctx context.Context, image []byte) (<-chan ocrOutcome, error) {
	q.startOnce.Do(func() { go q.run() })

	job := &ocrJob{
		ctx:   ctx,
		image: image,
		done:  make(chan ocrOutcome, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.pending = append(q.pending, job)
	depth := len(q.pending)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.logger.Debug("OCR job queued", "depth", depth)
	return job.done, nil
}

// depth reports the number of jobs waiting, excluding the one running.
func (q *ocrQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *ocrQueue) next() *ocrJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return job
}

func (q *ocrQueue) run() {
	defer close(q.stopped)

	for {
		select {
		case <-q.stop:
			q.shutdown()
			return
		default:
		}

		job := q.next()
		if job == nil {
			select {
			case <-q.wake:
			case <-q.stop:
				q.shutdown()
				return
			}
			continue
		}

		job.done <- q.process(job)
	}
}

func (q *ocrQueue) process(job *ocrJob) (out ocrOutcome) {
	// The caller stopped waiting while the job sat in the queue.
	if err := job.ctx.Err(); err != nil {
		return ocrOutcome{err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("OCR engine panicked", "panic", r)
			out = ocrOutcome{err: fmt.Errorf("OCR engine panic: %v", r)}
		}
	}()

	if q.engine == nil {
		engine, err := q.factory()
		if err != nil {
			return ocrOutcome{err: fmt.Errorf("failed to initialize OCR engine: %w", err)}
		}
		q.engine = engine
		q.logger.Info("OCR engine initialized")
	}

	text, err := q.engine.Recognize(job.ctx, job.image)
	return ocrOutcome{text: text, err: err}
}

func (q *ocrQueue) shutdown() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, job := range pending {
		job.done <- ocrOutcome{err: ErrQueueClosed}
	}

	if q.engine != nil {
		if err := q.engine.Close(); err != nil {
			q.logger.Warn("Failed to close OCR engine", "error", err)
		}
		q.engine = nil
	}
}

// close stops accepting jobs, waits for the running job, fails the rest
// and releases the engine.
func (q *ocrQueue) close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		q.startOnce.Do(func() { go q.run() })
		close(q.stop)
		<-q.stopped
	})
}
