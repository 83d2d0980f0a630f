package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drugcrow/crow/cmd/crow/cli/db"
)

func newQueryCmd() *cobra.Command {
	var (
		useLocal bool
		asTable  bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run read-only SQL against the warehouse",
		Long: "Runs one read-only statement against the configured warehouse and prints each row as a\n" +
			"JSON object. With --local the statement runs against .crow/data.db, where 'crow catalog'\n" +
			"and the answer history live.",
		Args: cobra.ExactArgs(1),
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

			if limit <= 0 {
				limit = rt.cfg.Warehouse.RowLimit
			}
			return runQuery(cmd, rt, args[0], useLocal, asTable, limit)
		},
	}

	cmd.Flags().BoolVar(&useLocal, "local", false, "Run SQL against the local data DB instead of the warehouse")
	cmd.Flags().BoolVar(&asTable, "table", false, "Print an aligned text table instead of JSON lines")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max rows to return (default warehouse.row_limit)")
	return cmd
}

func runQuery(cmd *cobra.Command, rt *runtime, query string, useLocal, asTable bool, limit int) error {
	if _, err := db.CheckReadOnly(query); err != nil {
		return fail(cmd, err)
	}

	store, err := db.OpenData(rt.root)
	if err != nil {
		return fail(cmd, fmt.Errorf("open data DB: %w", err))
	}
	defer store.Close()

	ctx := cmd.Context()
	var wh db.Querier
	if useLocal {
		wh = db.NewWarehouse(store, db.DriverDuckDB, rt.cfg.Warehouse.Timeout)
	} else {
		w, closeWarehouse, err := rt.openWarehouse(ctx, store)
		if err != nil {
			return fail(cmd, err)
		}
		defer closeWarehouse()
		wh = w
	}

	out := cmd.OutOrStdout()

	if asTable {
		text, err := wh.QueryText(ctx, query, limit)
		if err != nil {
			return fail(cmd, err)
		}
		fmt.Fprint(out, text)
		return nil
	}

	res, err := wh.Query(ctx, query, limit)
	if err != nil {
		return fail(cmd, err)
	}
	if err := db.WriteJSONLines(out, res); err != nil {
		return err
	}
	if res.Truncated {
		fmt.Fprintf(cmd.ErrOrStderr(), "(truncated at %d rows)\n", limit)
	}
	return nil
}
