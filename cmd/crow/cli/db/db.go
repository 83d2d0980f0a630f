// Package db opens the warehouse questions are answered against and the
// local DuckDB store that holds the schema catalog and answer history.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/microsoft/go-mssqldb"
)

// Driver names accepted by Open.
const (
	DriverDuckDB    = "duckdb"
	DriverPostgres  = "pgx"
	DriverSQLServer = "sqlserver"
	// DriverBigQuery has no database/sql driver; see OpenBigQuery.
	DriverBigQuery = "bigquery"
)

// DataPath returns the local store path under root.
func DataPath(root string) string {
	return filepath.Join(root, ".crow", "data.db")
}

// OpenData opens (or creates) the local store at <root>/.crow/data.db.
func OpenData(root string) (*sql.DB, error) {
	return open(DriverDuckDB, DataPath(root))
}

// Open connects to a warehouse. "postgres" is accepted as an alias for pgx.
// An empty duckdb DSN opens an in-memory database.
func Open(driver, dsn string) (*sql.DB, error) {
	d, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if d == DriverBigQuery {
		return nil, errors.New("bigquery is not a database/sql driver; use OpenBigQuery")
	}
	return open(d, dsn)
}

// NormalizeDriver maps a configured driver name to a registered one.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverDuckDB:
		return DriverDuckDB, nil
	case DriverPostgres, "postgres", "postgresql":
		return DriverPostgres, nil
	case DriverSQLServer, "mssql":
		return DriverSQLServer, nil
	case DriverBigQuery, "bq":
		return DriverBigQuery, nil
	default:
		return "", fmt.Errorf("unsupported warehouse driver %q", driver)
	}
}

func open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	return db, nil
}
