package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var extractMime string

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract text from an image or PDF",
	Long: `Extract runs OCR on images and reads the text layer of PDFs.

A PDF without a text layer is reported with needsManualConversion set;
convert it to PNG or JPEG and run extract on the image instead.

Example:
  docvalidate extract certificate.png
  docvalidate extract statement.pdf -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().StringVar(&extractMime, "mime", "", "MIME type (detected from content when empty)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	doc, err := rt.loadDocument(args[0], extractMime)
	if err != nil {
		return err
	}

	result := rt.extractor.Extract(context.Background(), doc)
	return render(cmd.OutOrStdout(), outputFormat, result)
}
