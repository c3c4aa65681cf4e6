package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// stubEngine echoes the image bytes as text. When gate is set, every call
// waits for a value on it (or for ctx).
type stubEngine struct {
	mu         sync.Mutex
	calls      []string
	confidence float64
	delay      time.Duration
	gate       chan struct{}
	started    chan string
	err        error

	inflight    int32
	maxInflight int32
	closed      atomic.Bool
}

func (e *stubEngine) Recognize(ctx context.Context, image []byte) (OCRText, error) {
	n := atomic.AddInt32(&e.inflight, 1)
	defer atomic.AddInt32(&e.inflight, -1)
	for {
		prev := atomic.LoadInt32(&e.maxInflight)
		if n <= prev || atomic.CompareAndSwapInt32(&e.maxInflight, prev, n) {
			break
		}
	}

	e.mu.Lock()
	e.calls = append(e.calls, string(image))
	e.mu.Unlock()

	if e.started != nil {
		e.started <- string(image)
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return OCRText{}, ctx.Err()
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.err != nil {
		return OCRText{}, e.err
	}
	return OCRText{Text: string(image), Confidence: e.confidence}, nil
}

func (e *stubEngine) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *stubEngine) recorded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type countingFactory struct {
	engine *stubEngine
	calls  atomic.Int32
	err    error
}

func (f *countingFactory) build() (OCREngine, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.engine, nil
}

type stubPDFReader struct {
	text  string
	pages int
	err   error
	panic bool
}

func (r stubPDFReader) ExtractText(ctx context.Context, data []byte) (string, int, error) {
	if r.panic {
		panic("broken xref")
	}
	return r.text, r.pages, r.err
}

// blockingPDFReader never returns before ctx is done.
type blockingPDFReader struct{}

func (blockingPDFReader) ExtractText(ctx context.Context, data []byte) (string, int, error) {
	<-ctx.Done()
	return "", 0, ctx.Err()
}
