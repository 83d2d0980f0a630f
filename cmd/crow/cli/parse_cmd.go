package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drugcrow/crow/cmd/crow/cli/schema"
)

func newParseCmd() *cobra.Command {
	var (
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "parse <schema-dump>",
		Short: "Parse schema documentation into table records",
		Long: "Parses a fixed-format schema documentation dump into table records. By default the\n" +
			"result is written to .crow/schema.json, where graph, path and ask read it from.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			format = strings.ToLower(format)
			if format != "json" && format != "yaml" {
				return fail(cmd, fmt.Errorf("unknown format %q; use json or yaml", format))
			}
			if output == "" {
				root, err := workspace(cmd)
				if err != nil {
					return err
				}
				if format != "json" {
					return fail(cmd, fmt.Errorf("the workspace schema is JSON; pass -o to write %s", format))
				}
				output = SchemaPath(root)
			}
			return runParse(cmd, args[0], output, format)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or - for stdout (default .crow/schema.json)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or yaml")
	return cmd
}

func runParse(cmd *cobra.Command, input, output, format string) error {
	res, err := schema.ParseFile(input)
	if err != nil {
		return fail(cmd, err)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s:%d (%s): %s: %q\n", input, s.Line, s.Table, s.Reason, s.Text)
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return fail(cmd, fmt.Errorf("create %s: %w", output, err))
		}
		defer f.Close()
		w = f
	}

	if format == "yaml" {
		err = schema.WriteYAML(w, res.Tables)
	} else {
		err = schema.WriteJSON(w, res.Tables)
	}
	if err != nil {
		return fail(cmd, fmt.Errorf("write %s: %w", output, err))
	}

	if output != "-" {
		columns := 0
		for _, t := range res.Tables {
			columns += len(t.Columns)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Parsed %d tables (%d columns) into %s.\n", len(res.Tables), columns, output)
	}
	return nil
}
