//go:build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/answer"
	"github.com/drugcrow/crow/cmd/crow/cli/db"
	"github.com/drugcrow/crow/cmd/crow/cli/llm"
	"github.com/drugcrow/crow/cmd/crow/cli/schema"
	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

const seedSQL = `
CREATE TABLE molecule_dictionary (
	molregno  BIGINT PRIMARY KEY,
	pref_name VARCHAR(255),
	chembl_id VARCHAR(20) NOT NULL
);
CREATE TABLE compound_properties (
	molregno BIGINT PRIMARY KEY REFERENCES molecule_dictionary (molregno),
	alogp    NUMERIC(9,2)
);
INSERT INTO molecule_dictionary VALUES
	(1, 'ASPIRIN', 'CHEMBL25'),
	(2, 'IBUPROFEN', 'CHEMBL521'),
	(3, 'CAFFEINE', 'CHEMBL113');
INSERT INTO compound_properties VALUES (1, 1.31), (2, 3.50), (3, -0.07);
`

var (
	warehouseOnce sync.Once
	warehouseDSN  string
	warehouseErr  error
)

// postgresDSN starts one PostgreSQL container for the run and seeds it.
func postgresDSN(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	warehouseOnce.Do(func() {
		warehouseDSN, warehouseErr = startPostgres(context.Background())
	})
	if warehouseErr != nil {
		t.Fatalf("Failed to set up warehouse: %v", warehouseErr)
	}
	return warehouseDSN
}

func startPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "chembl",
			"POSTGRES_USER":     "crow",
			"POSTGRES_PASSWORD": "crow_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://crow:crow_password@%s:%s/chembl?sslmode=disable", host, port.Port())

	var conn *sql.DB
	for i := 0; i < 10; i++ {
		if conn, err = db.Open("postgres", dsn); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, seedSQL); err != nil {
		return "", fmt.Errorf("seed: %w", err)
	}
	return dsn, nil
}

func TestWarehouse_Postgres(t *testing.T) {
	dsn := postgresDSN(t)

	w, err := db.OpenWarehouse("postgres", dsn, 10*time.Second)
	if err != nil {
		t.Fatalf("OpenWarehouse: %v", err)
	}
	defer w.Close()

	ctx := context.Background()
	res, err := w.Query(ctx, "SELECT pref_name FROM molecule_dictionary ORDER BY pref_name;", 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.Truncated || len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows and truncation, got %d rows (truncated=%v)", len(res.Rows), res.Truncated)
	}
	if res.Rows[0][0] != "ASPIRIN" || res.Rows[1][0] != "CAFFEINE" {
		t.Errorf("rows = %v", res.Rows)
	}

	text, err := w.QueryText(ctx, "SELECT count(*) AS n FROM molecule_dictionary", 10)
	if err != nil {
		t.Fatalf("QueryText: %v", err)
	}
	if !strings.Contains(text, "3") {
		t.Errorf("expected count in text table, got:\n%s", text)
	}

	if _, err := w.Query(ctx, "DELETE FROM molecule_dictionary", 0); err == nil {
		t.Error("writes must be rejected")
	}
}

func TestAnswer_EndToEnd(t *testing.T) {
	dsn := postgresDSN(t)

	tables, err := schema.LoadJSON(writeSchema(t))
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}

	w, err := db.OpenWarehouse("pgx", dsn, 10*time.Second)
	if err != nil {
		t.Fatalf("OpenWarehouse: %v", err)
	}
	defer w.Close()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".crow"), 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := db.OpenData(root)
	if err != nil {
		t.Fatalf("OpenData: %v", err)
	}
	defer store.Close()
	if err := db.InitDataSchema(store); err != nil {
		t.Fatalf("InitDataSchema: %v", err)
	}

	mock := llm.NewMock(
		`["PREF_NAME", "ALOGP"]`,
		"```sql\nSELECT m.pref_name, p.alogp FROM molecule_dictionary m JOIN compound_properties p ON p.molregno = m.molregno WHERE p.alogp > 1 ORDER BY p.alogp;\n```",
	)
	svc := &answer.Service{
		LLM:       mock,
		Tables:    tables,
		Graph:     schemagraph.Build(tables, zap.NewNop()),
		Warehouse: w,
		History:   db.AnswerLog{DB: store},
		Logger:    zap.NewNop(),
		RowLimit:  100,
		Dialect:   "PostgreSQL",
	}

	ctx := context.Background()
	a, err := svc.Answer(ctx, "Which molecules have an ALogP above 1?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(a.Result, "ASPIRIN") || !strings.Contains(a.Result, "IBUPROFEN") {
		t.Errorf("result missing molecules:\n%s", a.Result)
	}
	if strings.Contains(a.Result, "CAFFEINE") {
		t.Errorf("result should be filtered:\n%s", a.Result)
	}
	if mock.Calls() != 2 {
		t.Errorf("expected 2 model calls, got %d", mock.Calls())
	}
	if !strings.Contains(mock.Prompts[1], "COMPOUND_PROPERTIES") {
		t.Errorf("SQL prompt should carry the join context:\n%s", mock.Prompts[1])
	}

	records, err := db.RecentAnswers(ctx, store, 10)
	if err != nil {
		t.Fatalf("RecentAnswers: %v", err)
	}
	if len(records) != 1 || !records[0].OK || records[0].ID != a.ID {
		t.Errorf("history = %+v", records)
	}
}

// writeSchema parses a two-table dump and writes it as schema JSON.
func writeSchema(t *testing.T) string {
	t.Helper()
	dump := `MOLECULE_DICTIONARY:
KEYS  COLUMN_NAME  DATA_TYPE  NULLABLE  COMMENT
PK  MOLREGNO  NUMBER(9,0)  NOT NULL  Internal Primary Key for the molecule
    PREF_NAME  VARCHAR2(255)    Preferred name for the molecule

COMPOUND_PROPERTIES:
KEYS  COLUMN_NAME  DATA_TYPE  NULLABLE  COMMENT
PK,FK  MOLREGNO  NUMBER(9,0)  NOT NULL  Foreign key to the molecule_dictionary table
    ALOGP  NUMBER(9,2)    Calculated ALogP
`
	res, err := schema.Parse(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	path := filepath.Join(t.TempDir(), "schema.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := schema.WriteJSON(f, res.Tables); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	return path
}
