package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/finqa/finqa/internal/config"
	"github.com/finqa/finqa/internal/demo/producer"
	"github.com/finqa/finqa/internal/observability"
	"github.com/finqa/finqa/internal/storage"
	s3store "github.com/finqa/finqa/internal/storage/s3"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("FINQA_ENV_FILE")); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	demoCfg, err := producer.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo data config", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("finqa-demo-data")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Logs go to stderr so FINQA_DEMO_OUTPUT=- can pipe the CSV.
	logger := observability.NewLogger(cfg, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.ObjectStore
	if demoCfg.UploadKey != "" {
		store, err = s3store.New(ctx, s3store.Config{
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

	service, err := producer.NewService(demoCfg, logger, store)
	if err != nil {
		logger.Error("failed to initialize demo data producer", slog.Any("error", err))
		os.Exit(1)
	}
	if _, err := service.Run(ctx); err != nil {
		logger.Error("demo data producer failed", slog.Any("error", err))
		os.Exit(1)
	}
}
