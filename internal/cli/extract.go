package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vidasmart/coachgw/internal/plan"
)

func newExtractCommand() *cobra.Command {
	var planType string

	cmd := &cobra.Command{
		Use:   "extract <plan.json|->",
		Short: "List the trackable items of a plan",
		Long: `Read a plan document and print the items the app tracks for completion.
Use - to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := plan.ParseType(planType)
			if err != nil {
				return err
			}

			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			items := plan.Extract(cmd.Context(), logger, data, t)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}
	cmd.Flags().StringVarP(&planType, "type", "t", "", "plan type: physical, nutritional, emotional or spiritual")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
