package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/docvalidate-worker/internal/cache"
	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
)

const (
	DefaultPDFTextConfidence = 95.0
	DefaultExtractionTimeout = 2 * time.Minute

	msgNeedsConversion = "PDF has no extractable text layer. Convert the PDF to an image (PNG or JPEG) and upload it again for OCR."
)

// Extractor turns a document into text.
type Extractor interface {
	Extract(ctx context.Context, doc SourceDocument) ExtractionResult
}

// ExtractorConfig holds text extractor configuration
type ExtractorConfig struct {
	EngineFactory EngineFactory
	PDFReader     PDFTextReader
	PDFConfidence float64
	Timeout       time.Duration
	Cache         cache.Cache
	CacheTTL      time.Duration
	Logger        *logging.Logger
}

// TextExtractor extracts text from images through a serialized OCR engine
// and from PDFs through their text layer.
type TextExtractor struct {
	pdf           PDFTextReader
	pdfConfidence float64
	timeout       time.Duration
	cache         cache.Cache
	cacheTTL      time.Duration
	logger        *logging.Logger
	queue         *ocrQueue
}

// NewTextExtractor creates a new text extractor
func NewTextExtractor(cfg ExtractorConfig) (*TextExtractor, error) {
	if cfg.EngineFactory == nil {
		return nil, fmt.Errorf("EngineFactory is required")
	}
	if cfg.PDFReader == nil {
		cfg.PDFReader = LedongthucReader{}
	}
	if cfg.PDFConfidence <= 0 || cfg.PDFConfidence > 100 {
		cfg.PDFConfidence = DefaultPDFTextConfidence
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExtractionTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	return &TextExtractor{
		pdf:           cfg.PDFReader,
		pdfConfidence: cfg.PDFConfidence,
		timeout:       cfg.Timeout,
		cache:         cfg.Cache,
		cacheTTL:      cfg.CacheTTL,
		logger:        cfg.Logger,
		queue:         newOCRQueue(cfg.EngineFactory, cfg.Logger),
	}, nil
}

// Extract always returns a result; every failure is reported through
// Success and Error.
func (e *TextExtractor) Extract(ctx context.Context, doc SourceDocument) ExtractionResult {
	start := time.Now()

	key := ""
	if e.cache != nil {
		key = cache.ContentKey(doc.Kind().String(), doc.Data())
		if cached, ok := e.cachedResult(key); ok {
			e.logger.Debug("Extraction cache hit", "filename", doc.Name(), "kind", doc.Kind().String())
			return cached
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var result ExtractionResult
	switch doc.Kind() {
	case MediaPDF:
		result = e.extractPDF(ctx, doc)
	default:
		result = e.extractImage(ctx, doc)
	}
	result.DurationMs = time.Since(start).Milliseconds()

	if result.Success {
		e.logger.Info("Extraction completed",
			"filename", doc.Name(),
			"method", string(result.Method),
			"confidence", result.Confidence,
			"pages", result.PagesProcessed,
			"duration_ms", result.DurationMs)
		if key != "" {
			e.storeResult(key, result)
		}
	} else {
		e.logger.Warn("Extraction failed",
			"filename", doc.Name(),
			"method", string(result.Method),
			"error", result.Error,
			"needs_manual_conversion", result.NeedsManualConversion)
	}

	return result
}

// Close stops the OCR queue and releases the engine.
func (e *TextExtractor) Close() error {
	e.queue.close()
	return nil
}

// QueueDepth reports how many OCR jobs are waiting for the engine.
func (e *TextExtractor) QueueDepth() int {
	return e.queue.depth()
}

func (e *TextExtractor) extractImage(ctx context.Context, doc SourceDocument) ExtractionResult {
	done, err := e.queue.enqueue(ctx, doc.Data())
	if err != nil {
		return failure(MethodImageOCR, err.Error())
	}

	select {
	case out := <-done:
		if out.err != nil {
			return failure(MethodImageOCR, describe(out.err, e.timeout))
		}
		return ExtractionResult{
			Text:           out.text.Text,
			Confidence:     clampConfidence(out.text.Confidence),
			Success:        true,
			PagesProcessed: 1,
			Method:         MethodImageOCR,
		}
	case <-ctx.Done():
		return failure(MethodImageOCR, describe(ctx.Err(), e.timeout))
	}
}

type pdfOutcome struct {
	text  string
	pages int
	err   error
}

func (e *TextExtractor) extractPDF(ctx context.Context, doc SourceDocument) ExtractionResult {
	ch := make(chan pdfOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- pdfOutcome{err: fmt.Errorf("PDF reader panic: %v", r)}
			}
		}()
		text, pages, err := e.pdf.ExtractText(ctx, doc.Data())
		ch <- pdfOutcome{text: text, pages: pages, err: err}
	}()

	var out pdfOutcome
	select {
	case out = <-ch:
	case <-ctx.Done():
		return failure(MethodPDFText, describe(ctx.Err(), e.timeout))
	}

	if out.err != nil {
		return failure(MethodPDFText, describe(out.err, e.timeout))
	}

	text := strings.TrimSpace(out.text)
	if text == "" {
		result := failure(MethodPDFText, msgNeedsConversion)
		result.NeedsManualConversion = true
		result.PagesProcessed = out.pages
		return result
	}

	return ExtractionResult{
		Text:           text,
		Confidence:     e.pdfConfidence,
		Success:        true,
		PagesProcessed: out.pages,
		Method:         MethodPDFText,
	}
}

func (e *TextExtractor) cachedResult(key string) (ExtractionResult, bool) {
	raw, ok := e.cache.Get(key)
	if !ok {
		return ExtractionResult{}, false
	}
	var result ExtractionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		_ = e.cache.Delete(key)
		return ExtractionResult{}, false
	}
	return result, true
}

func (e *TextExtractor) storeResult(key string, result ExtractionResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.cache.Set(key, raw, e.cacheTTL); err != nil {
		e.logger.Warn("Failed to cache extraction result", "error", err)
	}
}

func failure(method ExtractionMethod, message string) ExtractionResult {
	return ExtractionResult{
		Success: false,
		Error:   message,
		Method:  method,
	}
}

func describe(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("extraction timed out after %v", timeout)
	}
	return err.Error()
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
