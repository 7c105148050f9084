package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidasmart/coachgw/internal/config"
	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/guard"
	"github.com/vidasmart/coachgw/internal/stage"
)

// DetectResult is printed by `coach detect`.
type DetectResult struct {
	Detection stage.Detection `json:"detection"`
	Decision  guard.Decision  `json:"decision"`
}

func newDetectCommand(configPath *string) *cobra.Command {
	var (
		persisted   string
		historyPath string
	)

	cmd := &cobra.Command{
		Use:   "detect <message>",
		Short: "Run the stage detector and guard on one message",
		Long: `Run the stage detector and the guard on a single message and print the
detection and the decision as JSON. Thresholds come from the config file
when it exists.

History is a JSON array of {"role", "content"} objects.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			current, err := domain.ParseStage(persisted)
			if err != nil {
				return err
			}
			history, err := readHistory(historyPath)
			if err != nil {
				return err
			}

			res := detect(cfg, strings.Join(args, " "), current, history, time.Now())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&persisted, "stage", "s", string(domain.StageLead), "stage currently stored for the client")
	cmd.Flags().StringVar(&historyPath, "history", "", "JSON file with the previous messages")
	return cmd
}

func detect(cfg *config.Config, message string, persisted domain.Stage, history []domain.ChatMessage, now time.Time) DetectResult {
	det := stage.NewDetector(cfg.Detector).Detect(stage.Input{
		History:   history,
		Message:   message,
		Persisted: persisted,
		Now:       now,
	})
	dec := guard.New(cfg.Guard).Evaluate(guard.Input{
		Detection: det,
		Persisted: persisted,
		Message:   message,
		History:   history,
	})
	return DetectResult{Detection: det, Decision: dec}
}

func readHistory(path string) ([]domain.ChatMessage, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var history []domain.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return history, nil
}
