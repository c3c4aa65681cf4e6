package main

import (
	"fmt"
	"os"

	"github.com/adverant/nexus/docvalidate-worker/internal/cli"
	"github.com/adverant/nexus/docvalidate-worker/internal/config"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor/tesseract"
)

func main() {
	err := cli.Execute(func(cfg *config.Config) processor.EngineFactory {
		return tesseract.Factory(tesseract.Config{
			Language:       cfg.TesseractLanguage,
			TessdataPrefix: cfg.TessdataPrefix,
		})
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
