package processor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFTextReader reads the embedded text layer of a PDF without rasterizing.
type PDFTextReader interface {
	ExtractText(ctx context.Context, data []byte) (text string, pages int, err error)
}

// LedongthucReader reads PDF text layers with github.com/ledongthuc/pdf.
// It holds no state and is safe for concurrent use.
type LedongthucReader struct{}

func (LedongthucReader) ExtractText(ctx context.Context, data []byte) (text string, pages int, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}

	pages = reader.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", pages, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("failed to read text of page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}

	return b.String(), pages, nil
}
