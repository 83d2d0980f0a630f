package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the build version, set with -ldflags "-X ...cli.Version=v1.2.3".
// Graph blobs record it and refuse to load across a major version change.
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "crow", Version)
			return nil
		},
	}
}
