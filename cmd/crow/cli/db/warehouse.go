package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shomali11/xsql"
)

// Warehouse runs read-only questions against the dataset.
type Warehouse struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
}

// NewWarehouse wraps an open connection. A zero timeout disables it.
func NewWarehouse(d *sql.DB, driver string, timeout time.Duration) *Warehouse {
	if n, err := NormalizeDriver(driver); err == nil {
		driver = n
	}
	return &Warehouse{db: d, driver: driver, timeout: timeout}
}

// OpenWarehouse opens driver/dsn and wraps it.
func OpenWarehouse(driver, dsn string, timeout time.Duration) (*Warehouse, error) {
	d, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewWarehouse(d, driver, timeout), nil
}

// DB returns the underlying connection.
func (w *Warehouse) DB() *sql.DB { return w.db }

// Close closes the underlying connection.
func (w *Warehouse) Close() error { return w.db.Close() }

// Result holds materialized query rows.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool // more rows existed past the limit
}

// Query runs a read-only query and returns at most limit rows
// (limit <= 0 means no cap).
func (w *Warehouse) Query(ctx context.Context, query string, limit int) (*Result, error) {
	q, err := CheckReadOnly(query)
	if err != nil {
		return nil, err
	}
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	rows, err := w.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		if limit > 0 && len(res.Rows) == limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range values {
			// Convert []byte to string for JSON output.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return res, nil
}

// QueryText runs a read-only query capped at limit rows and renders the
// rows as an aligned text table.
func (w *Warehouse) QueryText(ctx context.Context, query string, limit int) (string, error) {
	q, err := CheckReadOnly(query)
	if err != nil {
		return "", err
	}
	ctx, cancel := w.withTimeout(ctx)
	defer cancel()

	rows, err := w.db.QueryContext(ctx, w.limited(q, limit))
	if err != nil {
		return "", fmt.Errorf("query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	text, err := xsql.Pretty(rows)
	if err != nil {
		return "", fmt.Errorf("render rows: %w", err)
	}
	return text, nil
}

// limited caps q at limit rows in the warehouse's dialect.
func (w *Warehouse) limited(q string, limit int) string {
	if limit <= 0 {
		return q
	}
	if w.driver == DriverSQLServer {
		return topLimited(q, limit)
	}
	return appendLimit(q, limit)
}

func (w *Warehouse) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}

// WriteJSONLines writes one JSON object per row.
func WriteJSONLines(out io.Writer, r *Result) error {
	for _, values := range r.Rows {
		row := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			row[col] = values[i]
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		if _, err := fmt.Fprintln(out, string(data)); err != nil {
			return err
		}
	}
	return nil
}
