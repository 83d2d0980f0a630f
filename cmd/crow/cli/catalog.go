package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/drugcrow/crow/cmd/crow/cli/db"
	"github.com/drugcrow/crow/cmd/crow/cli/schema"
	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Load the parsed schema and saved graph into the local store",
		Long: "Replaces the schema_tables, schema_columns and schema_links tables of .crow/data.db with\n" +
			"the parsed schema and the links of .crow/graph.bin, so they can be explored with 'crow query'.",
		Args: cobra.NoArgs,
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

			tables, err := rt.loadTables("")
			if err != nil {
				return fail(cmd, err)
			}
			gr, meta, err := schemagraph.LoadFile(GraphPath(root), Version)
			if errors.Is(err, os.ErrNotExist) {
				return fail(cmd, errors.New("no saved graph; run 'crow graph' first"))
			}
			if err != nil {
				return fail(cmd, err)
			}

			store, err := db.OpenData(root)
			if err != nil {
				return fail(cmd, fmt.Errorf("open data DB: %w", err))
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := importCatalog(ctx, store, tables, gr, meta.Producer, meta.CreatedAt, meta.SchemaDigest); err != nil {
				return fail(cmd, err)
			}

			nt, nc, nl, err := db.CatalogCounts(ctx, store)
			if err != nil {
				return fail(cmd, fmt.Errorf("count catalog: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog loaded: %d tables, %d columns, %d links.\n", nt, nc, nl)
			return nil
		},
	}
	return cmd
}

// importCatalog replaces the catalog and records the graph build it came
// from. The old rows are deleted before the insert transaction starts:
// DuckDB rejects re-inserting a deleted key within the same transaction.
// A failed insert therefore leaves the catalog empty, and the error says so.
func importCatalog(ctx context.Context, store *sql.DB, tables []schema.Table, gr *schemagraph.Graph, producer string, builtAt time.Time, digest string) error {
	if err := db.ClearCatalog(ctx, store); err != nil {
		return err
	}
	if err := insertCatalog(ctx, store, tables, gr, producer, builtAt, digest); err != nil {
		return fmt.Errorf("catalog is now empty, re-run 'crow catalog': %w", err)
	}
	return nil
}

func insertCatalog(ctx context.Context, store *sql.DB, tables []schema.Table, gr *schemagraph.Graph, producer string, builtAt time.Time, digest string) error {
	tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range tables {
		if err := db.InsertCatalogTable(ctx, tx, t.TableName, t.Description, len(t.Columns)); err != nil {
			return fmt.Errorf("insert table %s: %w", t.TableName, err)
		}
		for i, c := range t.Columns {
			err := db.InsertCatalogColumn(ctx, tx, db.CatalogColumn{
				Table:    t.TableName,
				Name:     c.ColumnName,
				Ordinal:  i + 1,
				Keys:     c.Keys,
				DataType: c.DataType,
				Nullable: c.Nullable,
				Comment:  c.Comment,
			})
			if err != nil {
				return fmt.Errorf("insert column %s.%s: %w", t.TableName, c.ColumnName, err)
			}
		}
	}

	for _, l := range gr.Links() {
		if err := db.InsertCatalogLink(ctx, tx, l.Column, l.Table, l.Kind.String()); err != nil {
			return fmt.Errorf("insert link %s-%s: %w", l.Column, l.Table, err)
		}
	}

	entropy := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	if err := db.InsertGraphBuild(ctx, tx, id, producer, builtAt, digest, gr.Unresolved); err != nil {
		return fmt.Errorf("insert graph build: %w", err)
	}

	return tx.Commit()
}
