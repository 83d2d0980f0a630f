package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drugcrow/crow/cmd/crow/cli/prompt"
	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

func newPathCmd() *cobra.Command {
	var (
		stepsOnly bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "path <start-column> <end-column>",
		Short: "Print the path prompt for the shortest join path between two columns",
		Args:  cobra.ExactArgs(2),
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

			tables, err := rt.loadTables("")
			if err != nil {
				return fail(cmd, err)
			}
			gr := rt.loadGraph(tables)

			steps, err := gr.ShortestPath(args[0], args[1])
			if err != nil {
				return fail(cmd, err)
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				data, err := json.Marshal(steps)
				if err != nil {
					return fmt.Errorf("marshal: %w", err)
				}
				fmt.Fprintln(out, string(data))
			case stepsOnly:
				fmt.Fprintln(out, schemagraph.FormatSteps(steps))
			default:
				text, err := prompt.PathPrompt(args[0], args[1], steps, tables)
				if err != nil {
					return fail(cmd, err)
				}
				fmt.Fprint(out, text)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stepsOnly, "steps", false, "Print only the node sequence")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the node sequence as JSON")
	return cmd
}
