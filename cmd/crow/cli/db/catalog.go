package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ClearCatalog removes every catalog row so it can be reloaded.
func ClearCatalog(ctx context.Context, e Execer) error {
	for _, table := range []string{"schema_links", "schema_columns", "schema_tables"} {
		if _, err := e.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// InsertCatalogTable records one schema table.
func InsertCatalogTable(ctx context.Context, e Execer, name, description string, columnCount int) error {
	_, err := e.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_tables (table_name, description, column_count) VALUES (?, ?, ?)`,
		name, nullIfEmpty(description), columnCount)
	return err
}

// CatalogColumn is one row of schema_columns.
type CatalogColumn struct {
	Table    string
	Name     string
	Ordinal  int
	Keys     string
	DataType string
	Nullable string
	Comment  string
}

// InsertCatalogColumn records one column. A repeated column name in the
// same table keeps the first row.
func InsertCatalogColumn(ctx context.Context, e Execer, c CatalogColumn) error {
	_, err := e.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_columns
			(table_name, column_name, ordinal, key_flags, data_type, nullable, column_comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Table, c.Name, c.Ordinal, nullIfEmpty(c.Keys), nullIfEmpty(c.DataType),
		nullIfEmpty(c.Nullable), nullIfEmpty(c.Comment))
	return err
}

// InsertCatalogLink records one column-to-table graph edge.
func InsertCatalogLink(ctx context.Context, e Execer, column, table, kind string) error {
	_, err := e.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_links (column_name, table_name, kind) VALUES (?, ?, ?)`,
		column, table, kind)
	return err
}

// InsertGraphBuild records the meta frame of an imported graph blob.
func InsertGraphBuild(ctx context.Context, e Execer, id, producer string, builtAt time.Time, digest string, unresolved []string) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO graph_builds (id, producer, built_at, schema_digest, unresolved) VALUES (?, ?, ?, ?, ?)`,
		id, producer, builtAt.UTC(), nullIfEmpty(digest), nullIfEmpty(strings.Join(unresolved, ",")))
	return err
}

// CatalogCounts returns the number of catalog tables, columns and links.
func CatalogCounts(ctx context.Context, d *sql.DB) (tables, columns, links int, err error) {
	err = d.QueryRowContext(ctx, `SELECT
		(SELECT count(*) FROM schema_tables),
		(SELECT count(*) FROM schema_columns),
		(SELECT count(*) FROM schema_links)`).Scan(&tables, &columns, &links)
	return tables, columns, links, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
