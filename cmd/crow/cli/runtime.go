package cli

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drugcrow/crow/cmd/crow/cli/answer"
	"github.com/drugcrow/crow/cmd/crow/cli/config"
	"github.com/drugcrow/crow/cmd/crow/cli/db"
	"github.com/drugcrow/crow/cmd/crow/cli/llm"
	"github.com/drugcrow/crow/cmd/crow/cli/logging"
	"github.com/drugcrow/crow/cmd/crow/cli/schema"
	"github.com/drugcrow/crow/cmd/crow/cli/schemagraph"
)

// runtime is what most commands share: the workspace root, its config and
// a logger writing to the command's stderr.
type runtime struct {
	root   string
	cfg    *config.Config
	logger *zap.Logger
}

// loadRuntime reads the config for root. The --log-level flag wins over
// the config, which wins over defaultLevel.
func loadRuntime(cmd *cobra.Command, root, defaultLevel string) (*runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" && root != "" {
		path = ConfigPath(root)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := defaultLevel
	if cfg.Log.Level != "" {
		level = cfg.Log.Level
	}
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	logger, err := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &runtime{root: root, cfg: cfg, logger: logger}, nil
}

// loadTables reads the parsed schema from path, or from the workspace
// when path is empty.
func (rt *runtime) loadTables(path string) ([]schema.Table, error) {
	if path == "" {
		path = SchemaPath(rt.root)
	}
	tables, err := schema.LoadJSON(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no parsed schema at %s; run 'crow parse <dump>' first", path)
	}
	return tables, err
}

// loadGraph reads the saved graph, rebuilding it from tables when there is
// none, it was written by an incompatible version or the schema changed
// since it was built.
func (rt *runtime) loadGraph(tables []schema.Table) *schemagraph.Graph {
	path := GraphPath(rt.root)
	gr, meta, err := schemagraph.LoadFile(path, Version)
	switch {
	case err == nil:
		digest, derr := fileDigest(SchemaPath(rt.root))
		if derr == nil && meta.SchemaDigest != "" && meta.SchemaDigest != digest {
			rt.logger.Warn("graph is stale, rebuilding; run 'crow graph' to save it", zap.String("path", path))
			break
		}
		rt.logger.Debug("graph loaded", zap.String("path", path), zap.String("producer", meta.Producer))
		return gr
	case errors.Is(err, os.ErrNotExist):
	default:
		rt.logger.Warn("rebuilding graph", zap.String("path", path), zap.Error(err))
	}
	return schemagraph.Build(tables, rt.logger.Named("graph"))
}

// fileDigest returns the hex sha256 of the file at path.
func fileDigest(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// openWarehouse connects to the configured warehouse. The duckdb driver
// with an empty DSN reuses the local store.
func (rt *runtime) openWarehouse(ctx context.Context, local *sql.DB) (db.Querier, func(), error) {
	wc := rt.cfg.Warehouse
	driver, err := db.NormalizeDriver(wc.Driver)
	if err != nil {
		return nil, nil, err
	}
	if driver == db.DriverDuckDB && wc.DSN == "" {
		if local == nil {
			return nil, nil, errors.New("warehouse: local store is not open")
		}
		return db.NewWarehouse(local, driver, wc.Timeout), func() {}, nil
	}

	rt.logger.Debug("opening warehouse", zap.String("driver", driver), zap.String("dsn", logging.SanitizeDSN(wc.DSN)))
	if driver == db.DriverBigQuery {
		bq, err := db.OpenBigQuery(ctx, wc.DSN, wc.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("warehouse: %s", logging.SanitizeError(err))
		}
		return bq, func() { bq.Close() }, nil
	}
	w, err := db.OpenWarehouse(driver, wc.DSN, wc.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("warehouse: %s", logging.SanitizeError(err))
	}
	return w, func() { w.Close() }, nil
}

// newLLM builds the configured language model client.
func (rt *runtime) newLLM(ctx context.Context) (llm.Client, error) {
	lc := rt.cfg.LLM
	if !lc.Configured() {
		return nil, errors.New("no language model configured; set CROW_LLM_API_KEY or llm.base_url")
	}
	return llm.New(ctx, llm.Config{
		Provider:    lc.Provider,
		Model:       lc.Model,
		APIKey:      lc.APIKey,
		BaseURL:     lc.BaseURL,
		Temperature: lc.Temperature,
		MaxTokens:   lc.MaxTokens,
	}, rt.logger)
}

// newAnswerService wires the answer pipeline. The returned func releases
// the store and warehouse.
func (rt *runtime) newAnswerService(ctx context.Context) (*answer.Service, func(), error) {
	tables, err := rt.loadTables("")
	if err != nil {
		return nil, nil, err
	}
	client, err := rt.newLLM(ctx)
	if err != nil {
		return nil, nil, err
	}

	store, err := db.OpenData(rt.root)
	if err != nil {
		return nil, nil, fmt.Errorf("open data DB: %w", err)
	}
	wh, closeWarehouse, err := rt.openWarehouse(ctx, store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	svc := &answer.Service{
		LLM:       client,
		Tables:    tables,
		Graph:     rt.loadGraph(tables),
		Warehouse: wh,
		History:   db.AnswerLog{DB: store},
		Logger:    rt.logger.Named("answer"),
		RowLimit:  rt.cfg.Warehouse.RowLimit,
		Dialect:   rt.cfg.Warehouse.SQLDialect(),
	}
	rt.logger.Info("answer service ready",
		zap.String("model", client.Model()),
		zap.Int("tables", len(tables)),
		zap.String("dialect", svc.Dialect))

	return svc, func() {
		closeWarehouse()
		store.Close()
	}, nil
}
