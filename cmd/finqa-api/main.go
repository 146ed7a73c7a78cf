package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finqa/finqa/internal/api"
	"github.com/finqa/finqa/internal/auth"
	"github.com/finqa/finqa/internal/config"
	"github.com/finqa/finqa/internal/dataset"
	"github.com/finqa/finqa/internal/llm"
	"github.com/finqa/finqa/internal/observability"
	"github.com/finqa/finqa/internal/pipeline"
	"github.com/finqa/finqa/internal/preprocess"
	duckdbengine "github.com/finqa/finqa/internal/query/duckdb"
	"github.com/finqa/finqa/internal/refresh"
	"github.com/finqa/finqa/internal/source"
	"github.com/finqa/finqa/internal/storage"
	s3store "github.com/finqa/finqa/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("FINQA_ENV_FILE")); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("finqa-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var objectStore storage.ObjectStore
	if cfg.Dataset.Source == config.DatasetSourceObject || cfg.Dataset.PublishSnapshots {
		objectStore, err = s3store.New(ctx, s3store.Config{
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
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	loader, sourceDB, err := newLoader(ctx, cfg, objectStore, preprocess.New(logger))
	if err != nil {
		logger.Error("failed to initialize dataset source", slog.Any("error", err))
		os.Exit(1)
	}
	if sourceDB != nil {
		defer func() { _ = sourceDB.Close() }()
	}

	store := dataset.NewStore(nil)
	refresher := &refresh.Service{
		Loader:      loader,
		Store:       store,
		ObjectStore: objectStore,
		Config: refresh.Config{
			Schedule:         cfg.Dataset.RefreshSchedule,
			PublishSnapshots: cfg.Dataset.PublishSnapshots,
		},
		Logger: logger,
	}
	if _, err := refresher.RefreshOnce(ctx); err != nil {
		// Serve anyway: /v1/ready reports the missing dataset and the schedule retries.
		logger.Error("initial dataset load failed", slog.Any("error", err))
	}
	go func() {
		if err := refresher.Run(ctx); err != nil {
			logger.Error("dataset refresh scheduler stopped", slog.Any("error", err))
		}
	}()

	model, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Error("failed to initialize language model", slog.Any("error", err))
		os.Exit(1)
	}

	asker := pipeline.New(store, model, duckdbengine.NewEngine(cfg.Pipeline.QueryTempDir), pipeline.Config{
		ValidationAttempts: cfg.Pipeline.ValidationAttempts,
		RowLimit:           cfg.Pipeline.ResultRowLimit,
		FallbackRows:       cfg.Pipeline.FallbackRows,
		Location:           cfg.Pipeline.Location(),
	}, logger)

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(api.CheckDatasetLoaded(store)),
		DependencyTimeout: time.Second,
		Asker:             asker,
		Datasets:          store,
		Refresher:         refresher,
		AskTimeout:        cfg.Pipeline.AskTimeout,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("llm_provider", string(cfg.LLM.Provider)),
			slog.String("dataset_source", loader.Describe()),
		)
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

// newLoader picks the dataset source. The returned *sql.DB is non-nil for the postgres
// source and must be closed by the caller.
func newLoader(ctx context.Context, cfg config.Config, objectStore storage.ObjectStore, pre *preprocess.Preprocessor) (source.Loader, *sql.DB, error) {
	switch cfg.Dataset.Source {
	case config.DatasetSourceFile:
		loader, err := source.NewFileLoader(cfg.Dataset.Path, pre)
		return loader, nil, err
	case config.DatasetSourceObject:
		loader, err := source.NewObjectLoader(objectStore, cfg.Dataset.ObjectKey, pre)
		return loader, nil, err
	case config.DatasetSourcePostgres:
		db, err := source.OpenDB(ctx, source.DBConfig{
			DSN:             cfg.SourceDB.DSN,
			MaxOpenConns:    cfg.SourceDB.MaxOpenConns,
			MaxIdleConns:    cfg.SourceDB.MaxIdleConns,
			ConnMaxIdleTime: cfg.SourceDB.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.SourceDB.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		loader, err := source.NewPostgresLoader(db, cfg.Dataset.PostgresTable, pre)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return loader, db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported dataset source %q", cfg.Dataset.Source)
	}
}
