/**
 * Extraction Types - Shared data structures for text extraction
 *
 * SourceDocument carries the media kind decided once at the boundary;
 * everything downstream dispatches on Kind and never re-reads the MIME type.
 */

package processor

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"

	workerrors "github.com/adverant/nexus/docvalidate-worker/internal/errors"
)

// MediaKind is the extraction path a document takes.
type MediaKind int

const (
	MediaImage MediaKind = iota
	MediaPDF
)

func (k MediaKind) String() string {
	if k == MediaPDF {
		return "pdf"
	}
	return "image"
}

// MarshalText renders the kind as "image" or "pdf".
func (k MediaKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

const mimePDF = "application/pdf"

// ErrEmptyDocument is returned when a document has no content.
var ErrEmptyDocument = errors.New("document has no content")

// SourceDocument is an immutable reference to a file of known media kind.
type SourceDocument struct {
	name     string
	mimeType string
	kind     MediaKind
	data     []byte
}

// NewSourceDocument resolves the media type and fixes the document kind.
// A missing or generic MIME type is corrected from magic bytes, then from
// the file extension.
func NewSourceDocument(name, mimeType string, data []byte) (SourceDocument, error) {
	if len(data) == 0 {
		return SourceDocument{}, ErrEmptyDocument
	}

	resolved := resolveMimeType(name, mimeType, data)
	kind := MediaImage
	if resolved == mimePDF {
		kind = MediaPDF
	}

	return SourceDocument{
		name:     name,
		mimeType: resolved,
		kind:     kind,
		data:     data,
	}, nil
}

func (d SourceDocument) Name() string     { return d.name }
func (d SourceDocument) MIMEType() string { return d.mimeType }
func (d SourceDocument) Kind() MediaKind  { return d.kind }
func (d SourceDocument) Size() int64      { return int64(len(d.data)) }
func (d SourceDocument) Data() []byte     { return d.data }

// CheckSize rejects documents larger than limit. A non-positive limit
// disables the check.
func CheckSize(jobID string, size, limit int64) error {
	if limit > 0 && size > limit {
		return workerrors.NewFileTooLargeError(jobID, size, limit)
	}
	return nil
}

func resolveMimeType(name, declared string, data []byte) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}

	if detected := detectMimeTypeFromMagicBytes(data); detected != "" {
		return detected
	}

	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		if i := strings.Index(byExt, ";"); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}

	if mt == "" {
		return "application/octet-stream"
	}
	return mt
}

// ExtractionMethod names the path that produced an ExtractionResult.
type ExtractionMethod string

const (
	MethodImageOCR ExtractionMethod = "image-ocr"
	MethodPDFText  ExtractionMethod = "pdf-text"
)

// ExtractionResult is the outcome of one extraction. Failures are encoded
// in Success and Error; extraction never returns a Go error.
type ExtractionResult struct {
	Text                  string           `json:"text" yaml:"text"`
	Confidence            float64          `json:"confidence" yaml:"confidence"`
	Success               bool             `json:"success" yaml:"success"`
	PagesProcessed        int              `json:"pagesProcessed" yaml:"pagesProcessed"`
	Error                 string           `json:"error,omitempty" yaml:"error,omitempty"`
	NeedsManualConversion bool             `json:"needsManualConversion,omitempty" yaml:"needsManualConversion,omitempty"`
	Method                ExtractionMethod `json:"method" yaml:"method"`
	DurationMs            int64            `json:"durationMs" yaml:"durationMs"`
}

// OCRText is what an OCR engine reports for one image.
type OCRText struct {
	Text       string
	Confidence float64 // 0-100
}

// OCREngine recognizes text in a raster image. Implementations need not be
// safe for concurrent use; the extractor serializes every call.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (OCRText, error)
	Close() error
}

// EngineFactory creates the OCR engine on first use.
type EngineFactory func() (OCREngine, error)
