package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drugcrow/crow/cmd/crow/cli/db"
)

func newLogCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recently answered questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			root, err := workspace(cmd)
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fail(cmd, fmt.Errorf("--limit must be positive, got %d", limit))
			}

			store, err := db.OpenData(root)
			if err != nil {
				return fail(cmd, fmt.Errorf("open data DB: %w", err))
			}
			defer store.Close()

			records, err := db.RecentAnswers(cmd.Context(), store, limit)
			if err != nil {
				return fail(cmd, err)
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				data, err := json.Marshal(r)
				if err != nil {
					return fmt.Errorf("marshal: %w", err)
				}
				fmt.Fprintln(out, string(data))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Max entries to show")
	return cmd
}
