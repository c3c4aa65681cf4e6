package cli

import (
	"fmt"
	"os"

	"github.com/adverant/nexus/docvalidate-worker/internal/config"
	"github.com/adverant/nexus/docvalidate-worker/internal/processor"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	envFile      string
	verbose      bool
	outputFormat string
)

// EngineBuilder creates the OCR engine factory from configuration.
type EngineBuilder func(cfg *config.Config) processor.EngineFactory

var engineBuilder EngineBuilder

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "docvalidate",
	Short: "Document validation - extract text and check it against expected values",
	Long: `docvalidate extracts text from an uploaded document (image OCR or PDF text
layer) and reports how well it corroborates the values a user entered.

Simple mode checks a tilde-delimited list of expected values. Advanced mode
classifies each form field as a match, a suggestion or a mismatch.

Configuration is read from the environment (see .env.nexus).`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

// Execute runs the root command
func Execute(builder EngineBuilder) error {
	engineBuilder = builder
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "docvalidate v0.3.0")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "config", ".env.nexus", "environment file to load before reading configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format (json, yaml)")

	rootCmd.AddCommand(versionCmd)
}

// loadEnv reads the environment file if present. Variables already set in
// the process environment win.
func loadEnv(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil {
		if cmd.Flags().Changed("config") {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "%s not found, using process environment\n", envFile)
		}
	}
	return nil
}
