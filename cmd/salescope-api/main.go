package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salescope/salescope/internal/api"
	"github.com/salescope/salescope/internal/auth"
	"github.com/salescope/salescope/internal/checkpoint"
	"github.com/salescope/salescope/internal/completion"
	"github.com/salescope/salescope/internal/config"
	"github.com/salescope/salescope/internal/observability"
	"github.com/salescope/salescope/internal/pipeline"
	"github.com/salescope/salescope/internal/report"
	"github.com/salescope/salescope/internal/schema"
	"github.com/salescope/salescope/internal/snapshot"
	s3store "github.com/salescope/salescope/internal/snapshot/s3"
	"github.com/salescope/salescope/internal/sqlgen"
	"github.com/salescope/salescope/internal/warehouse"
	duckdbengine "github.com/salescope/salescope/internal/warehouse/duckdb"
	warehousepostgres "github.com/salescope/salescope/internal/warehouse/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("salescope-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	client, err := completion.NewOpenAIClient(completion.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize completion client", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		db            *sql.DB
		executor      warehouse.Executor
		provider      schema.Provider = schema.StaticProvider{}
		store         checkpoint.Store
		snapshotStore snapshot.Store
	)

	switch cfg.Warehouse.Backend {
	case "postgres":
		db, err = warehousepostgres.Open(context.Background(), cfg.Database)
		if err != nil {
			logger.Error("failed to open warehouse db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		executor = warehouse.NewSQLExecutor(db)
		provider = schema.NewCatalogProvider(db, cfg.Warehouse.Table)
		store = checkpoint.NewPostgresStore(db)

	case "duckdb":
		if cfg.Warehouse.SnapshotPath == "" {
			snapshotStore, err = s3store.New(context.Background(), s3store.Config{
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
		}
		executor, err = duckdbengine.NewEngine(duckdbengine.Config{
			Table:        cfg.Warehouse.Table,
			SnapshotPath: cfg.Warehouse.SnapshotPath,
			SnapshotKey:  cfg.Warehouse.SnapshotKey,
		}, snapshotStore)
		if err != nil {
			logger.Error("failed to initialize snapshot engine", slog.Any("error", err))
			os.Exit(1)
		}
		store = checkpoint.NewMemoryStore()
	}

	readiness := []api.ReadinessCheck{
		api.CheckWarehouseConfig(cfg),
		api.CheckCompletionConfig(cfg),
	}
	if snapshotStore != nil {
		readiness = append(readiness, api.CheckSnapshotAvailable(snapshotStore, cfg.Warehouse.SnapshotKey))
	}

	runner := pipeline.NewRunner(
		sqlgen.New(completion.NewInstrumented("synthesis", client), provider, cfg.Warehouse.Table),
		executor,
		report.New(completion.NewInstrumented("report", client)),
		store,
		logger,
		pipeline.Config{MaxHistoryMessages: cfg.Pipeline.MaxHistoryMessages},
	)

	deps := api.Dependencies{
		Logger:            logger,
		Runner:            runner,
		Schema:            provider,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("backend", cfg.Warehouse.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
