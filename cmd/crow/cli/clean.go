package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the crow workspace (.crow/)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true

			root, err := FindRoot()
			if errors.Is(err, errNotInitialized) {
				fmt.Fprintln(cmd.OutOrStdout(), "Crow cleaned.")
				return nil
			}
			if err != nil {
				return fail(cmd, err)
			}
			if err := runClean(root); err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Crow cleaned.")
			return nil
		},
	}
}

// runClean removes .crow/ under root. A missing directory is not an error.
func runClean(root string) error {
	if err := os.RemoveAll(CrowDir(root)); err != nil {
		return fmt.Errorf("remove .crow/: %w", err)
	}
	return nil
}
