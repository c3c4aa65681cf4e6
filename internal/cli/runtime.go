package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adverant/nexus/docvalidate-worker/internal/cache"
	"github.com/adverant/nexus/docvalidate-worker/internal/config"
	"github.com/adverant/nexus/docvalidate-worker/internal/logging"
	"github.com/adverant/nexus/docvalidate-worker/internal/matching"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
)

// runtime is the local validation pipeline used by the one-shot commands.
type runtime struct {
	cfg       *config.Config
	extractor *processor.TextExtractor
	processor *processor.DocumentProcessor
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// One-shot commands keep stdout for results, so logs stay quiet unless
	// LOG_LEVEL is set explicitly.
	level := "warn"
	if _, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = cfg.LogLevel
	}
	if verbose {
		level = "debug"
	}
	if err := logging.Init(level, cfg.IsDevelopment()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime() (*runtime, error) {
	if engineBuilder == nil {
		return nil, fmt.Errorf("no OCR engine configured")
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// A zero TTL disables the extraction cache.
	var extractionCache cache.Cache
	if cfg.ExtractionCacheTTL > 0 {
		extractionCache = cache.NewMemoryCache(cfg.ExtractionCacheTTL, cfg.ExtractionCacheTTL)
	}

	extractor, err := processor.NewTextExtractor(processor.ExtractorConfig{
		EngineFactory: engineBuilder(cfg),
		PDFConfidence: cfg.PDFTextConfidence,
		Timeout:       cfg.ExtractionTimeout,
		Cache:         extractionCache,
		CacheTTL:      cfg.ExtractionCacheTTL,
		Logger:        logging.NewLogger("extractor"),
	})
	if err != nil {
		return nil, err
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Extractor:   extractor,
		MaxFileSize: cfg.MaxFileSize,
		Matching: matching.Options{
			SimilarityThreshold: cfg.SimilarityThreshold,
			SuggestionWeight:    cfg.SuggestionWeight,
			NumericFields:       cfg.NumericFields,
		},
		Logger: logging.NewLogger("processor"),
	})
	if err != nil {
		_ = extractor.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, extractor: extractor, processor: proc}, nil
}

func (r *runtime) Close() {
	_ = r.extractor.Close()
	logging.Sync()
}

// loadDocument reads a local file into a SourceDocument, enforcing the
// configured size limit.
func (r *runtime) loadDocument(path, mimeType string) (processor.SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return processor.SourceDocument{}, err
	}
	if err := processor.CheckSize("", info.Size(), r.cfg.MaxFileSize); err != nil {
		return processor.SourceDocument{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return processor.SourceDocument{}, err
	}
	return processor.NewSourceDocument(filepath.Base(path), mimeType, data)
}
