package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

func newGraphCmd() *cobra.Command {
	var (
		schemaFile string
		dotFile    string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build the schema graph and save it to .crow/graph.bin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			return runGraph(cmd, rt, schemaFile, dotFile, asJSON)
		},
	}

	cmd.Flags().StringVar(&schemaFile, "schema", "", "Parsed schema JSON (default .crow/schema.json)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "Also write the graph in Graphviz DOT format to this file (- for stdout)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print graph statistics as JSON")
	return cmd
}

func runGraph(cmd *cobra.Command, rt *runtime, schemaFile, dotFile string, asJSON bool) error {
	workspaceSchema := SchemaPath(rt.root)
	if schemaFile == "" {
		schemaFile = workspaceSchema
	}
	tables, err := rt.loadTables(schemaFile)
	if err != nil {
		return fail(cmd, err)
	}
	// The saved graph is checked against the workspace schema, and every
	// other command reads that file, so another schema replaces it.
	if !sameFile(schemaFile, workspaceSchema) {
		if err := copyFile(schemaFile, workspaceSchema); err != nil {
			return fail(cmd, fmt.Errorf("adopt schema: %w", err))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "note: %s copied to %s\n", schemaFile, workspaceSchema)
	}
	digest, err := fileDigest(workspaceSchema)
	if err != nil {
		return fail(cmd, fmt.Errorf("digest schema: %w", err))
	}

	gr := schemagraph.Build(tables, rt.logger.Named("graph"))
	for _, ref := range gr.Unresolved {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: foreign key target %q matches no table\n", ref)
	}

	if err := gr.SaveFile(GraphPath(rt.root), Version, digest); err != nil {
		return fail(cmd, err)
	}

	if dotFile != "" {
		if err := writeDOT(cmd.OutOrStdout(), gr, dotFile); err != nil {
			return fail(cmd, err)
		}
	}

	stats := gr.Stats()
	if asJSON {
		data, err := json.Marshal(stats)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	if dotFile != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "Graph saved: %s.\n", stats)
	}
	return nil
}

func writeDOT(stdout io.Writer, gr *schemagraph.Graph, path string) error {
	if path == "-" {
		return gr.WriteDOT(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := gr.WriteDOT(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func sameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
