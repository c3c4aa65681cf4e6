package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/adverant/nexus/docvalidate-worker/internal/config"
	"github.com/adverant/nexus/docvalidate-worker/internal/queue"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	submitJobID    string
	submitUserID   string
	submitMode     string
	submitExpected string
	submitFields   []string
	submitSynonyms []string
	submitNumeric  []string
	submitMime     string
)

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit <file-or-url>",
	Short: "Queue a validation job for the worker",
	Long: `Submit enqueues a validate-document task on the Asynq queue named by
QUEUE_NAME. Local files are sent inline; http(s) URLs are downloaded by
the worker.

Example:
  docvalidate submit certificate.png --expected "Acme~2019/123456/07"
  docvalidate submit https://files.example.com/grant.pdf --mode advanced --field amount=1250`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitJobID, "job-id", "", "job ID (random UUID when empty)")
	submitCmd.Flags().StringVar(&submitUserID, "user", "", "user ID recorded with the job")
	submitCmd.Flags().StringVar(&submitMode, "mode", "simple", "validation mode (simple, advanced)")
	submitCmd.Flags().StringVarP(&submitExpected, "expected", "e", "", "expected values separated by ~ (simple mode)")
	submitCmd.Flags().StringArrayVarP(&submitFields, "field", "f", nil, "form field as key=value (advanced mode)")
	submitCmd.Flags().StringArrayVar(&submitSynonyms, "synonym", nil, "field synonyms as key=a|b (advanced mode)")
	submitCmd.Flags().StringSliceVar(&submitNumeric, "numeric", nil, "additional numeric fields (advanced mode)")
	submitCmd.Flags().StringVar(&submitMime, "mime", "", "MIME type")
}

// submission is what submit prints.
type submission struct {
	JobID    string    `json:"jobId" yaml:"jobId"`
	TaskID   string    `json:"taskId" yaml:"taskId"`
	Queue    string    `json:"queue" yaml:"queue"`
	Enqueued time.Time `json:"enqueuedAt" yaml:"enqueuedAt"`
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	payload, err := buildPayload(args[0], cfg)
	if err != nil {
		return err
	}

	producer, err := queue.NewProducer(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		return err
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	info, err := producer.EnqueueValidation(ctx, payload)
	if err != nil {
		return err
	}

	return render(cmd.OutOrStdout(), outputFormat, submission{
		JobID:    payload.JobID,
		TaskID:   info.ID,
		Queue:    info.Queue,
		Enqueued: time.Now().UTC(),
	})
}

func buildPayload(source string, cfg *config.Config) (*queue.JobPayload, error) {
	payload := &queue.JobPayload{
		JobID:          submitJobID,
		UserID:         submitUserID,
		MimeType:       submitMime,
		Mode:           submitMode,
		ExpectedValues: submitExpected,
		NumericFields:  submitNumeric,
	}
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}

	var err error
	if payload.FormData, err = parseFields(submitFields); err != nil {
		return nil, err
	}
	if payload.FieldSynonyms, err = parseSynonyms(submitSynonyms); err != nil {
		return nil, err
	}

	if u, perr := url.Parse(source); perr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		payload.FileURL = source
		payload.Filename = path.Base(u.Path)
		return payload, nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if info.Size() > cfg.MaxFileSize {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d", source, info.Size(), cfg.MaxFileSize)
	}
	if payload.FileBuffer, err = os.ReadFile(source); err != nil {
		return nil, err
	}
	payload.Filename = filepath.Base(source)
	payload.FileSize = info.Size()
	return payload, nil
}
