package cli

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/docvalidate-worker/internal/matching"
	"github.com/spf13/cobra"
)

var (
	formFields    []string
	fieldSynonyms []string
	numericFields []string
	advancedMime  string
)

// advancedCmd represents the advanced command
var advancedCmd = &cobra.Command{
	Use:   "advanced <file>",
	Short: "Classify form fields against a document",
	Long: `Advanced validation sorts every form field into matches, suggestions and
mismatches. Suggestions come from field synonyms or from a close fuzzy
match in the extracted text.

Example:
  docvalidate advanced grant.pdf \
    --field name="Jane Doe" --field amount=1250 \
    --synonym name="J. Doe|Doe, Jane" --numeric amount`,
	Args: cobra.ExactArgs(1),
	RunE: runAdvanced,
}

func init() {
	rootCmd.AddCommand(advancedCmd)
	advancedCmd.Flags().StringArrayVarP(&formFields, "field", "f", nil, "form field as key=value (repeatable)")
	advancedCmd.Flags().StringArrayVar(&fieldSynonyms, "synonym", nil, "field synonyms as key=a|b (repeatable)")
	advancedCmd.Flags().StringSliceVar(&numericFields, "numeric", nil, "additional numeric fields")
	advancedCmd.Flags().StringVar(&advancedMime, "mime", "", "MIME type (detected from content when empty)")
	_ = advancedCmd.MarkFlagRequired("field")
}

func runAdvanced(cmd *cobra.Command, args []string) error {
	form, err := parseFields(formFields)
	if err != nil {
		return err
	}
	synonyms, err := parseSynonyms(fieldSynonyms)
	if err != nil {
		return err
	}
	if len(form) == 0 {
		return fmt.Errorf("at least one --field is required")
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	doc, err := rt.loadDocument(args[0], advancedMime)
	if err != nil {
		return err
	}

	resp := rt.processor.ValidateAdvanced(context.Background(), doc,
		matching.FormData(form), matching.FieldSynonyms(synonyms), numericFields...)
	return render(cmd.OutOrStdout(), outputFormat, resp)
}
