package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phenoquery/phenoquery/internal/config"
	"github.com/phenoquery/phenoquery/internal/mirror"
	"github.com/phenoquery/phenoquery/internal/observability"
	s3store "github.com/phenoquery/phenoquery/internal/storage/s3"
)

func main() {
	once := flag.Bool("once", false, "run a single sync and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv("phenoquery-sync")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		Bucket:          cfg.ObjectStore.Bucket,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		UseSSL:          cfg.ObjectStore.UseSSL,
		Prefix:          cfg.ObjectStore.Prefix,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	service := &mirror.Service{
		Store:     store,
		Dir:       cfg.Dataset.Dir,
		Prefix:    cfg.Dataset.Prefix,
		Extension: cfg.Dataset.Extension,
		Interval:  cfg.Mirror.Interval,
		Logger:    logger,
	}

	if *once {
		summary, err := service.SyncOnce(ctx)
		_ = json.NewEncoder(os.Stdout).Encode(summary)
		if err != nil {
			logger.Error("sync failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	logger.Info("starting dataset mirror",
		slog.String("bucket", cfg.ObjectStore.Bucket),
		slog.String("dir", cfg.Dataset.Dir),
		slog.Duration("interval", cfg.Mirror.Interval),
	)
	if err := service.Run(ctx); err != nil {
		logger.Error("mirror stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
