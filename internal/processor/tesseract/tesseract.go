/**
 * Tesseract OCR engine for the Document Validation Worker
 *
 * One long-lived gosseract client, created lazily by the extractor's OCR
 * queue and used from a single goroutine only.
 */

package tesseract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
	"github.com/otiai10/gosseract/v2"
)

// Config holds Tesseract configuration
type Config struct {
	Language       string
	TessdataPrefix string
}

// Engine recognizes text with a single gosseract client.
type Engine struct {
	client *gosseract.Client
}

// New creates a Tesseract engine
func New(cfg Config) (*Engine, error) {
	if cfg.TessdataPrefix != "" {
		if err := os.Setenv("TESSDATA_PREFIX", cfg.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set TESSDATA_PREFIX: %w", err)
		}
	}

	client := gosseract.NewClient()
	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(strings.Split(lang, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}

	return &Engine{client: client}, nil
}

// Factory returns an EngineFactory that builds the engine on first use.
func Factory(cfg Config) processor.EngineFactory {
	return func() (processor.OCREngine, error) {
		return New(cfg)
	}
}

// Recognize runs OCR on one encoded image. Confidence is the mean of the
// word confidences Tesseract reports.
func (e *Engine) Recognize(ctx context.Context, image []byte) (processor.OCRText, error) {
	if err := ctx.Err(); err != nil {
		return processor.OCRText{}, err
	}

	if err := e.client.SetImageFromBytes(image); err != nil {
		return processor.OCRText{}, fmt.Errorf("set image: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return processor.OCRText{}, fmt.Errorf("recognize text: %w", err)
	}

	return processor.OCRText{
		Text:       strings.TrimSpace(text),
		Confidence: e.meanConfidence(),
	}, nil
}

func (e *Engine) meanConfidence() float64 {
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	return sum / float64(len(boxes))
}

// Close releases the underlying Tesseract API handle.
func (e *Engine) Close() error {
	return e.client.Close()
}
