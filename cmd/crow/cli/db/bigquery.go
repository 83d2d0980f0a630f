package db

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// Querier runs read-only questions against a warehouse.
type Querier interface {
	Query(ctx context.Context, query string, limit int) (*Result, error)
	QueryText(ctx context.Context, query string, limit int) (string, error)
}

var (
	_ Querier = (*Warehouse)(nil)
	_ Querier = (*BigQuery)(nil)
)

// BigQueryConfig is a parsed bigquery:// DSN.
//
//	bigquery://<billing-project>/<[project.]dataset>?location=US&max_bytes_billed=10000000000
//
// The dataset is the default for unqualified table names; it may live in
// another project, such as bigquery-public-data.ebi_chembl.
type BigQueryConfig struct {
	Project        string
	DataProject    string
	Dataset        string
	Location       string
	MaxBytesBilled int64
}

// ParseBigQueryDSN parses dsn.
func ParseBigQueryDSN(dsn string) (BigQueryConfig, error) {
	var cfg BigQueryConfig
	u, err := url.Parse(dsn)
	if err != nil {
		return cfg, fmt.Errorf("bigquery dsn: %w", err)
	}
	if u.Scheme != "bigquery" {
		return cfg, fmt.Errorf("bigquery dsn: scheme %q, want bigquery://", u.Scheme)
	}
	cfg.Project = u.Host
	if cfg.Project == "" {
		return cfg, errors.New("bigquery dsn: billing project is missing")
	}

	cfg.DataProject = cfg.Project
	if ds := strings.Trim(u.Path, "/"); ds != "" {
		if i := strings.LastIndexByte(ds, '.'); i >= 0 {
			cfg.DataProject, ds = ds[:i], ds[i+1:]
		}
		cfg.Dataset = ds
	}

	q := u.Query()
	cfg.Location = q.Get("location")
	if v := q.Get("max_bytes_billed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("bigquery dsn: bad max_bytes_billed %q", v)
		}
		cfg.MaxBytesBilled = n
	}
	return cfg, nil
}

// BigQuery runs read-only questions against a BigQuery dataset.
// Credentials come from Application Default Credentials.
type BigQuery struct {
	client  *bigquery.Client
	cfg     BigQueryConfig
	timeout time.Duration
}

// OpenBigQuery creates a client for dsn. A zero timeout disables it.
func OpenBigQuery(ctx context.Context, dsn string, timeout time.Duration) (*BigQuery, error) {
	cfg, err := ParseBigQueryDSN(dsn)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("open bigquery: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}
	return &BigQuery{client: client, cfg: cfg, timeout: timeout}, nil
}

// Close releases the client.
func (b *BigQuery) Close() error { return b.client.Close() }

// Query runs a read-only query and returns at most limit rows
// (limit <= 0 means no cap).
func (b *BigQuery) Query(ctx context.Context, query string, limit int) (*Result, error) {
	q, err := CheckReadOnly(query)
	if err != nil {
		return nil, err
	}
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	bq := b.client.Query(q)
	bq.DefaultProjectID = b.cfg.DataProject
	bq.DefaultDatasetID = b.cfg.Dataset
	bq.MaxBytesBilled = b.cfg.MaxBytesBilled
	it, err := bq.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	res := &Result{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("rows: %w", err)
		}
		if limit > 0 && len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = bigQueryValue(v)
		}
		res.Rows = append(res.Rows, values)
	}
	for _, f := range it.Schema {
		res.Columns = append(res.Columns, f.Name)
	}
	return res, nil
}

// QueryText runs a read-only query capped at limit rows and renders the
// rows as an aligned text table.
func (b *BigQuery) QueryText(ctx context.Context, query string, limit int) (string, error) {
	res, err := b.Query(ctx, query, limit)
	if err != nil {
		return "", err
	}
	return RenderText(res), nil
}

// bigQueryValue converts a row value into something JSON and text
// rendering understand.
func bigQueryValue(v bigquery.Value) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *big.Rat:
		f, _ := x.Float64()
		return f
	case []byte:
		return string(x)
	case []bigquery.Value:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = bigQueryValue(e)
		}
		return out
	case time.Time:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return x
	}
}

// RenderText lays out r like the psql-style tables QueryText prints for
// database/sql warehouses: centered headers, numbers right-aligned and a
// row count footer.
func RenderText(r *Result) string {
	if len(r.Columns) == 0 {
		return rowFooter(0)
	}

	cells := make([][]string, len(r.Rows))
	widths := make([]int, len(r.Columns))
	numeric := make([]bool, len(r.Columns))
	for i, c := range r.Columns {
		widths[i] = len(c)
		numeric[i] = len(r.Rows) > 0
	}
	for ri, row := range r.Rows {
		cells[ri] = make([]string, len(r.Columns))
		for i := range r.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			s, isNum := textCell(v)
			cells[ri][i] = s
			if !isNum && v != nil {
				numeric[i] = false
			}
			widths[i] = max(widths[i], len(s))
		}
	}

	var b strings.Builder
	for i, c := range r.Columns {
		if i > 0 {
			b.WriteString("|")
		}
		b.WriteString(" " + center(c, widths[i]) + " ")
	}
	b.WriteString("\n")
	for i := range r.Columns {
		if i > 0 {
			b.WriteString("+")
		}
		b.WriteString(strings.Repeat("-", widths[i]+2))
	}
	b.WriteString("\n")
	for _, row := range cells {
		for i, s := range row {
			if i > 0 {
				b.WriteString("|")
			}
			pad := strings.Repeat(" ", widths[i]-len(s))
			if numeric[i] {
				b.WriteString(" " + pad + s + " ")
			} else {
				b.WriteString(" " + s + pad + " ")
			}
		}
		b.WriteString("\n")
	}
	b.WriteString(rowFooter(len(cells)))
	return b.String()
}

func textCell(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case time.Time:
		return x.Format(time.RFC3339Nano), false
	default:
		return fmt.Sprint(x), false
	}
}

func center(s string, width int) string {
	gap := width - len(s)
	if gap <= 0 {
		return s
	}
	left := gap / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", gap-left)
}

func rowFooter(n int) string {
	if n == 1 {
		return "(1 row)"
	}
	return fmt.Sprintf("(%d rows)", n)
}
