package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vidasmart/coachgw/internal/auth"
)

func newKeygenCommand() *cobra.Command {
	var prefix string

	cmd := &cobra.Command{
		Use:   "keygen [secret]",
		Short: "Generate the internal API secret and its hash",
		Long: `Generate a random internal secret, or hash the one given, and print the
SHA-256 digest to put in config.yaml under auth.secret_hash.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var secret string
			if len(args) == 1 {
				secret = args[0]
			} else {
				var err error
				secret, err = auth.GenerateSecret(prefix)
				if err != nil {
					return err
				}
			}
			hash := auth.HashSecret(secret)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Secret: %s\n", secret)
			fmt.Fprintf(out, "SHA-256 Hash: %s\n", hash)
			fmt.Fprintln(out, "\nAdd this to your config.yaml:")
			fmt.Fprintln(out, "  auth:")
			fmt.Fprintf(out, "    secret_hash: %q\n", hash)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "coach_", "prefix for generated secrets")
	return cmd
}
