package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question about the drug database",
		Long: "Selects the columns relevant to the question, builds join-path context from the schema\n" +
			"graph, asks the language model for a read-only query and runs it against the warehouse.\n" +
			"The generated SQL goes to stderr and the rows to stdout.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			root, err := workspace(cmd)
			if err != nil {
				return err
			}
			rt, err := loadRuntime(cmd, root, "warn")
			if err != nil {
				return fail(cmd, err)
			}
			defer rt.logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			svc, cleanup, err := rt.newAnswerService(ctx)
			if err != nil {
				return fail(cmd, err)
			}
			defer cleanup()

			a, err := svc.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return fail(cmd, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.Marshal(a)
				if err != nil {
					return fmt.Errorf("marshal: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "-- %s\n%s\n\n", strings.Join(a.Columns, ", "), a.SQL)
			fmt.Fprint(out, a.Result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer, SQL and selected columns as JSON")
	return cmd
}
