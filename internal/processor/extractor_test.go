package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adverant/nexus/docvalidate-worker/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func imageDoc(t *testing.T, body string) SourceDocument {
	t.Helper()
	doc, err := NewSourceDocument(body+".png", "image/png", []byte(body))
	require.NoError(t, err)
	return doc
}

func pdfDoc(t *testing.T) SourceDocument {
	t.Helper()
	doc, err := NewSourceDocument("form.pdf", "application/pdf", []byte("%PDF-1.7 stub"))
	require.NoError(t, err)
	return doc
}

func newTestExtractor(t *testing.T, cfg ExtractorConfig) *TextExtractor {
	t.Helper()
	e, err := NewTextExtractor(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewTextExtractor_RequiresEngineFactory(t *testing.T) {
	_, err := NewTextExtractor(ExtractorConfig{})
	assert.Error(t, err)
}

func TestExtract_ImageUsesOCR(t *testing.T) {
	engine := &stubEngine{confidence: 87.5}
	factory := &countingFactory{engine: engine}
	e := newTestExtractor(t, ExtractorConfig{EngineFactory: factory.build})

	assert.Zero(t, factory.calls.Load(), "engine must be created lazily")

	res := e.Extract(context.Background(), imageDoc(t, "Jane Doe 2024"))

	assert.True(t, res.Success)
	assert.Equal(t, "Jane Doe 2024", res.Text)
	assert.InDelta(t, 87.5, res.Confidence, 1e-9)
	assert.Equal(t, 1, res.PagesProcessed)
	assert.Equal(t, MethodImageOCR, res.Method)
	assert.Empty(t, res.Error)
	assert.EqualValues(t, 1, factory.calls.Load())
}

func TestExtract_ClampsEngineConfidence(t *testing.T) {
	engine := &stubEngine{confidence: 140}
	e := newTestExtractor(t, ExtractorConfig{EngineFactory: (&countingFactory{engine: engine}).build})

	res := e.Extract(context.Background(), imageDoc(t, "x"))
	assert.InDelta(t, 100.0, res.Confidence, 1e-9)
}

func TestExtract_OCRErrorIsReportedNotReturned(t *testing.T) {
	engine := &stubEngine{err: errors.New("unreadable image")}
	e := newTestExtractor(t, ExtractorConfig{EngineFactory: (&countingFactory{engine: engine}).build})

	res := e.Extract(context.Background(), imageDoc(t, "x"))

	assert.False(t, res.Success)
	assert.Equal(t, "unreadable image", res.Error)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
	assert.Equal(t, MethodImageOCR, res.Method)
}

func TestExtract_ConcurrentImagesNeverOverlap(t *testing.T) {
	engine := &stubEngine{delay: 5 * time.Millisecond}
	factory := &countingFactory{engine: engine}
	e := newTestExtractor(t, ExtractorConfig{EngineFactory: factory.build})

	docs := make([]SourceDocument, 12)
	for i := range docs {
		docs[i] = imageDoc(t, string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for _, doc := range docs {
		wg.Add(1)
		go func(doc SourceDocument) {
			defer wg.Done()
			res := e.Extract(context.Background(), doc)
			assert.True(t, res.Success)
		}(doc)
	}
	wg.Wait()

	assert.EqualValues(t, 1, engine.maxInflight)
	assert.Len(t, engine.recorded(), 12)
	assert.EqualValues(t, 1, factory.calls.Load())
}

func TestExtract_ImagesCompleteInCallOrder(t *testing.T) {
	engine := &stubEngine{gate: make(chan struct{}), started: make(chan string, 2)}
	e := newTestExtractor(t, ExtractorConfig{EngineFactory: (&countingFactory{engine: engine}).build})

	first, second := imageDoc(t, "first"), imageDoc(t, "second")
	firstDone := make(chan ExtractionResult, 1)
	secondDone := make(chan ExtractionResult, 1)

	go func() { firstDone <- e.Extract(context.Background(), first) }()
	require.Equal(t, "first", <-engine.started)

	go func() { secondDone <- e.Extract(context.Background(), second) }()
	require.Eventually(t, func() bool { return e.QueueDepth() == 1 }, time.Second, time.Millisecond)

	engine.gate <- struct{}{}
	res := <-firstDone
	assert.Equal(t, "first", res.Text)

	require.Equal(t, "second", <-engine.started)
	select {
	case <-secondDone:
		t.Fatal("second call finished before its engine run was released")
	default:
	}

	engine.gate <- struct{}{}
	res = <-secondDone
	assert.Equal(t, "second", res.Text)
	assert.Equal(t, []string{"first", "second"}, engine.recorded())
}

func TestExtract_ImageTimeout(t *testing.T) {
	engine := &stubEngine{gate: make(chan struct{})}
	e := newTestExtractor(t, ExtractorConfig{
		EngineFactory: (&countingFactory{engine: engine}).build,
		Timeout:       30 * time.Millisecond,
	})

	res := e.Extract(context.Background(), imageDoc(t, "slow"))

	assert.False(t, res.Success)
	assert.Equal(t, "extraction timed out after 30ms", res.Error)
}

func TestExtract_PDFTextLayer(t *testing.T) {
	e := newTestExtractor(t, ExtractorConfig{
		EngineFactory: (&countingFactory{engine: &stubEngine{}}).build,
		PDFReader:     stubPDFReader{text: "  Grant Agreement\n2024  \n", pages: 3},
	})

	res := e.Extract(context.Background(), pdfDoc(t))

	assert.True(t, res.Success)
	assert.Equal(t, "Grant Agreement\n2024", res.Text)
	assert.InDelta(t, DefaultPDFTextConfidence, res.Confidence, 1e-9)
	assert.Equal(t, 3, res.PagesProcessed)
	assert.Equal(t, MethodPDFText, res.Method)
}

func TestExtract_PDFConfidenceIsConfigurable(t *testing.T) {
	e := newTestExtractor(t, ExtractorConfig{
		EngineFactory: (&countingFactory{engine: &stubEngine{}}).build,
		PDFReader:     stubPDFReader{text: "text", pages: 1},
		PDFConfidence: 90,
	})

	res := e.Extract(context.Background(), pdfDoc(t))
	assert.InDelta(t, 90.0, res.Confidence, 1e-9)
}

func TestExtract_PDFWithoutTextNeedsConversion(t *testing.T) {
	factory := &countingFactory{engine: &stubEngine{}}
	e := newTestExtractor(t, ExtractorConfig{
		EngineFactory: factory.build,
		PDFReader:     stubPDFReader{text: " \n\t ", pages: 2},
	})

	res := e.Extract(context.Background(), pdfDoc(t))

	assert.False(t, res.Success)
	assert.True(t, res.NeedsManualConversion)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Error, "Convert the PDF to an image")
	assert.Equal(t, 2, res.PagesProcessed)
	assert.Zero(t, factory.calls.Load(), "PDFs never reach the OCR engine")
}

func TestExtract_PDFReaderFailures(t *testing.T) {
	cases := map[string]struct {
		reader PDFTextReader
		want   string
	}{
		"error": {reader: stubPDFReader{err: errors.New("encrypted document")}, want: "encrypted document"},
		"panic": {reader: stubPDFReader{panic: true}, want: "panic"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := newTestExtractor(t, ExtractorConfig{
				EngineFactory: (&countingFactory{engine: &stubEngine{}}).build,
				PDFReader:     tc.reader,
			})

			res := e.Extract(context.Background(), pdfDoc(t))

			assert.False(t, res.Success)
			assert.False(t, res.NeedsManualConversion)
			assert.Contains(t, res.Error, tc.want)
			assert.Equal(t, MethodPDFText, res.Method)
		})
	}
}

func TestExtract_PDFTimeout(t *testing.T) {
	e := newTestExtractor(t, ExtractorConfig{
		EngineFactory: (&countingFactory{engine: &stubEngine{}}).build,
		PDFReader:     blockingPDFReader{},
		Timeout:       20 * time.Millisecond,
	})

	res := e.Extract(context.Background(), pdfDoc(t))

	assert.False(t, res.Success)
	assert.Equal(t, "extraction timed out after 20ms", res.Error)
}

func TestExtract_CachesSuccessfulResults(t *testing.T) {
	engine := &stubEngine{confidence: 80}
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	e := newTestExtractor(t, ExtractorConfig{
		EngineFactory: (&countingFactory{engine: engine}).build,
		Cache:         mem,
		CacheTTL:      time.Minute,
	})

	doc := imageDoc(t, "cached")
	first := e.Extract(context.Background(), doc)
	second := e.Extract(context.Background(), doc)

	assert.Equal(t, first.Text, second.Text)
	assert.Len(t, engine.recorded(), 1)
	assert.Equal(t, 1, mem.Len())
}

func TestExtract_DoesNotCacheFailures(t *testing.T) {
	engine := &stubEngine{err: errors.New("blurry")}
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	e := newTestExtractor(t, ExtractorConfig{
		EngineFactory: (&countingFactory{engine: engine}).build,
		Cache:         mem,
		CacheTTL:      time.Minute,
	})

	doc := imageDoc(t, "blurry")
	e.Extract(context.Background(), doc)
	e.Extract(context.Background(), doc)

	assert.Len(t, engine.recorded(), 2)
	assert.Zero(t, mem.Len())
}

func TestExtract_AfterCloseFails(t *testing.T) {
	e, err := NewTextExtractor(ExtractorConfig{EngineFactory: (&countingFactory{engine: &stubEngine{}}).build})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	res := e.Extract(context.Background(), imageDoc(t, "late"))

	assert.False(t, res.Success)
	assert.Equal(t, ErrQueueClosed.Error(), res.Error)
}

func TestNewSourceDocument_ResolvesKind(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		mimeType string
		data     []byte
		wantMIME string
		wantKind MediaKind
	}{
		{"declared image", "a.png", "image/png", pngHeader, "image/png", MediaImage},
		{"parameters stripped", "a.pdf", "Application/PDF; version=1.7", []byte("%PDF-1.4"), "application/pdf", MediaPDF},
		{"octet-stream corrected by magic bytes", "upload", "application/octet-stream", []byte("%PDF-1.4"), "application/pdf", MediaPDF},
		{"missing type corrected by magic bytes", "upload", "", pngHeader, "image/png", MediaImage},
		{"missing type resolved by extension", "scan.pdf", "", []byte("????"), "application/pdf", MediaPDF},
		{"unknown defaults to image path", "blob", "", []byte("????"), "application/octet-stream", MediaImage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := NewSourceDocument(tc.filename, tc.mimeType, tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.wantMIME, doc.MIMEType())
			assert.Equal(t, tc.wantKind, doc.Kind())
			assert.Equal(t, int64(len(tc.data)), doc.Size())
		})
	}
}

func TestNewSourceDocument_RejectsEmptyData(t *testing.T) {
	_, err := NewSourceDocument("a.png", "image/png", nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, CheckSize("job", 10, 10))
	assert.NoError(t, CheckSize("job", 10, 0))
	assert.Error(t, CheckSize("job", 11, 10))
}

func TestLedongthucReader_RejectsNonPDF(t *testing.T) {
	_, _, err := LedongthucReader{}.ExtractText(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestDetectMimeTypeFromMagicBytes(t *testing.T) {
	assert.Equal(t, "image/jpeg", detectMimeTypeFromMagicBytes([]byte{0xFF, 0xD8, 0xFF, 0xE0}))
	assert.Equal(t, "image/tiff", detectMimeTypeFromMagicBytes([]byte{0x49, 0x49, 0x2A, 0x00}))
	assert.Equal(t, "image/gif", detectMimeTypeFromMagicBytes([]byte("GIF89a..")))
	assert.Empty(t, detectMimeTypeFromMagicBytes([]byte("ab")))
}
