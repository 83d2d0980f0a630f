package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd returns the root command for the crow CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crow",
		Short: "Crow answers questions about a drug database",
		Long: "Crow parses a drug database's schema documentation into a graph of tables and columns,\n" +
			"finds join paths between columns and answers natural-language questions with read-only SQL.",
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().String("config", "", "Config file (default .crow/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")

	cmd.SetVersionTemplate("crow {{.Version}}\n")
	cmd.Version = Version

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newGraphCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newCatalogCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLogCmd())

	return cmd
}

// Run executes the root command and exits with the appropriate code.
func Run() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		if !IsSilentError(err) {
			fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		}
		os.Exit(1)
	}
}
