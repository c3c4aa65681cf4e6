package cli

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/docvalidate-worker/internal/matching"
	"github.com/spf13/cobra"
)

var (
	expectedValues string
	validateMime   string
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a document for expected values",
	Long: `Validate extracts text and counts how many of the tilde-delimited expected
values occur in it, ignoring case.

Example:
  docvalidate validate certificate.png --expected "Acme Holdings~2019/123456/07"`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&expectedValues, "expected", "e", "", "expected values separated by ~")
	validateCmd.Flags().StringVar(&validateMime, "mime", "", "MIME type (detected from content when empty)")
	_ = validateCmd.MarkFlagRequired("expected")
}

func runValidate(cmd *cobra.Command, args []string) error {
	expected := matching.ParseExpectedValues(expectedValues)
	if err := matching.CheckExpectedValues(expected); err != nil {
		return fmt.Errorf("--expected: %w", err)
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	doc, err := rt.loadDocument(args[0], validateMime)
	if err != nil {
		return err
	}

	resp := rt.processor.Validate(context.Background(), doc, expected)
	return render(cmd.OutOrStdout(), outputFormat, resp)
}
