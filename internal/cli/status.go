package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/docvalidate-worker/internal/storage"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the stored state of a validation job",
	Long:  `Status reads the job row from PostgreSQL. DATABASE_URL must be set.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}

	db, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job, err := db.GetJobByID(ctx, args[0])
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), outputFormat, job)
}
