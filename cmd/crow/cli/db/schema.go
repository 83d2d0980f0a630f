package db

import "database/sql"

// InitDataSchema creates the local store tables if they do not exist.
// The catalog tables are rebuilt by `crow catalog`; answers is append-only.
func InitDataSchema(d *sql.DB) error {
	_, err := d.Exec(dataDDL)
	return err
}

const dataDDL = `
CREATE TABLE IF NOT EXISTS schema_tables (
	table_name      VARCHAR PRIMARY KEY,
	description     VARCHAR,
	column_count    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_columns (
	table_name      VARCHAR NOT NULL,
	column_name     VARCHAR NOT NULL,
	ordinal         INTEGER NOT NULL,
	key_flags       VARCHAR,
	data_type       VARCHAR,
	nullable        VARCHAR,
	column_comment  VARCHAR,
	PRIMARY KEY (table_name, column_name)
);

CREATE TABLE IF NOT EXISTS schema_links (
	column_name     VARCHAR NOT NULL,
	table_name      VARCHAR NOT NULL,
	kind            VARCHAR NOT NULL,
	PRIMARY KEY (column_name, table_name, kind)
);

CREATE TABLE IF NOT EXISTS graph_builds (
	id              VARCHAR PRIMARY KEY,
	producer        VARCHAR NOT NULL,
	built_at        TIMESTAMP NOT NULL,
	schema_digest   VARCHAR,
	unresolved      VARCHAR
);

CREATE TABLE IF NOT EXISTS answers (
	id              VARCHAR PRIMARY KEY,
	asked_at        TIMESTAMP NOT NULL,
	question        VARCHAR NOT NULL,
	selected_columns VARCHAR,
	sql_text        VARCHAR,
	ok              BOOLEAN NOT NULL,
	error_message   VARCHAR,
	elapsed_ms      BIGINT NOT NULL
);
`
