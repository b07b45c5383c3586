// Package duckdb runs analytics SQL against a parquet snapshot of the sales
// table using an embedded DuckDB instance.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/salescope/salescope/internal/snapshot"
	"github.com/salescope/salescope/internal/warehouse"
)

type Config struct {
	// Table is the view name the snapshot is mounted under.
	Table string
	// SnapshotPath points at a local parquet file. When set it wins over
	// SnapshotKey.
	SnapshotPath string
	// SnapshotKey names a parquet object in the snapshot store.
	SnapshotKey string
}

// Engine satisfies warehouse.Executor by mounting the configured parquet
// snapshot as a view and running the statement against it. Each query opens
// a fresh in-memory DuckDB, which keeps runs isolated at the cost of a view
// rebuild per call.
type Engine struct {
	table        string
	snapshotPath string
	snapshotKey  string
	store        snapshot.Store
}

func NewEngine(cfg Config, store snapshot.Store) (*Engine, error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if strings.TrimSpace(cfg.SnapshotPath) == "" && strings.TrimSpace(cfg.SnapshotKey) == "" {
		return nil, fmt.Errorf("snapshot path or key is required")
	}
	if strings.TrimSpace(cfg.SnapshotPath) == "" && store == nil {
		return nil, fmt.Errorf("snapshot store is required for key %q", cfg.SnapshotKey)
	}
	return &Engine{
		table:        strings.TrimSpace(cfg.Table),
		snapshotPath: strings.TrimSpace(cfg.SnapshotPath),
		snapshotKey:  strings.TrimSpace(cfg.SnapshotKey),
		store:        store,
	}, nil
}

func (e *Engine) Query(ctx context.Context, sqlText string) (warehouse.RowSet, error) {
	localPath, cleanup, err := e.resolveSnapshot(ctx)
	if err != nil {
		return warehouse.RowSet{}, err
	}
	defer cleanup()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return warehouse.RowSet{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
		quoteIdent(e.table), quoteString(localPath))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return warehouse.RowSet{}, fmt.Errorf("mount snapshot view %q: %w", e.table, err)
	}

	return warehouse.NewSQLExecutor(db).Query(ctx, sqlText)
}

// resolveSnapshot returns a local parquet path, downloading from the object
// store when no local path is configured.
func (e *Engine) resolveSnapshot(ctx context.Context) (string, func(), error) {
	if e.snapshotPath != "" {
		if _, err := os.Stat(e.snapshotPath); err != nil {
			return "", nil, fmt.Errorf("snapshot file %q: %w", e.snapshotPath, err)
		}
		return e.snapshotPath, func() {}, nil
	}

	reader, err := e.store.Get(ctx, e.snapshotKey)
	if err != nil {
		return "", nil, fmt.Errorf("get snapshot %q: %w", e.snapshotKey, err)
	}
	defer func() { _ = reader.Close() }()

	workDir, err := os.MkdirTemp("", "salescope-query-")
	if err != nil {
		return "", nil, fmt.Errorf("create query temp dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(workDir) }

	localPath := filepath.Join(workDir, "snapshot.parquet")
	if err := writeFile(localPath, reader); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write local snapshot %q: %w", localPath, err)
	}
	return localPath, cleanup, nil
}

func writeFile(path string, body io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, body); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
