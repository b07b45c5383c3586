// salescope-load imports the quarterly sales CSV into Postgres and can push
// a parquet snapshot of it into the object store for the DuckDB backend.
package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/salescope/salescope/internal/config"
	"github.com/salescope/salescope/internal/dataset"
	"github.com/salescope/salescope/internal/observability"
	s3store "github.com/salescope/salescope/internal/snapshot/s3"
	warehousepostgres "github.com/salescope/salescope/internal/warehouse/postgres"
)

func main() {
	csvPath := flag.String("csv", "", "path to the quarterly sales CSV export")
	batchSize := flag.Int("batch-size", 500, "rows per insert batch")
	pushSnapshot := flag.Bool("snapshot", false, "also upload a parquet snapshot to the object store")
	snapshotOut := flag.String("snapshot-file", "", "also write the parquet snapshot to a local file")
	flag.Parse()

	cfg, err := config.LoadFromEnv("salescope-load")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	if *csvPath == "" {
		logger.Error("csv path is required (-csv)")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	file, err := os.Open(*csvPath)
	if err != nil {
		logger.Error("failed to open csv", slog.Any("error", err))
		os.Exit(1)
	}
	records, err := dataset.ParseCSV(file)
	_ = file.Close()
	if err != nil {
		logger.Error("failed to parse csv", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("parsed csv", slog.Int("records", len(records)))

	db, err := warehousepostgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open warehouse db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	loader := dataset.NewLoader(db, *batchSize)
	if err := loader.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", slog.Any("error", err))
		os.Exit(1)
	}
	total, err := loader.Load(ctx, records)
	if err != nil {
		logger.Error("failed to load records", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("loaded records", slog.Int("rows", total))

	if !*pushSnapshot && *snapshotOut == "" {
		return
	}

	data, err := dataset.EncodeParquet(records)
	if err != nil {
		logger.Error("failed to encode parquet snapshot", slog.Any("error", err))
		os.Exit(1)
	}

	if *snapshotOut != "" {
		if err := os.WriteFile(*snapshotOut, data, 0o644); err != nil {
			logger.Error("failed to write snapshot file", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("wrote snapshot file", slog.String("path", *snapshotOut), slog.Int("bytes", len(data)))
	}

	if *pushSnapshot {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize snapshot store", slog.Any("error", err))
			os.Exit(1)
		}
		info, err := store.Put(ctx, cfg.Warehouse.SnapshotKey, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			logger.Error("failed to upload snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("uploaded snapshot",
			slog.String("key", info.Key),
			slog.Int64("bytes", info.Size))
	}
}
