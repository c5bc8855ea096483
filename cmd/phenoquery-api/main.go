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

	"github.com/phenoquery/phenoquery/internal/api"
	"github.com/phenoquery/phenoquery/internal/api/uistatic"
	"github.com/phenoquery/phenoquery/internal/audit"
	auditpostgres "github.com/phenoquery/phenoquery/internal/audit/postgres"
	"github.com/phenoquery/phenoquery/internal/config"
	"github.com/phenoquery/phenoquery/internal/dataset"
	"github.com/phenoquery/phenoquery/internal/explorer"
	"github.com/phenoquery/phenoquery/internal/migrations"
	"github.com/phenoquery/phenoquery/internal/observability"
	duckdbengine "github.com/phenoquery/phenoquery/internal/query/duckdb"
	"github.com/phenoquery/phenoquery/internal/schema"
)

func main() {
	cfg, err := config.LoadFromEnv("phenoquery-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	catalog := dataset.NewCatalog(cfg.Dataset.Dir, cfg.Dataset.Prefix, cfg.Dataset.Extension, logger)
	reconciler := schema.NewReconciler(schema.ParquetIntrospector{}, cfg.Dataset.IntrospectConcurrency, logger)
	engine := duckdbengine.NewEngine(logger)

	readiness := []api.ReadinessCheck{api.CheckDatasetDir(cfg)}
	var recorder audit.Recorder = audit.Nop{}
	if cfg.Audit.DSN != "" {
		auditDB, err := openAudit(cfg)
		if err != nil {
			logger.Error("failed to open audit db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = auditDB.Close() }()
		auditRecorder := auditpostgres.NewRecorder(auditDB)
		recorder = auditRecorder
		readiness = append(readiness, auditRecorder.HealthCheck)
	}

	service := explorer.NewService(explorer.Options{
		Catalog:    catalog,
		Reconciler: reconciler,
		Engine:     engine,
		Recorder:   recorder,
		Logger:     logger,
		RowLimit:   cfg.Query.RowLimit,
		Timeout:    cfg.Query.Timeout,
	})

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
		Explorer:          service,
		UI:                uistatic.Handler(),
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if names, err := catalog.Scan(ctx); err != nil {
		logger.Warn("dataset catalog not usable at startup",
			slog.String("dir", cfg.Dataset.Dir),
			slog.String("pattern", catalog.Pattern()),
			slog.Any("error", err),
		)
	} else {
		logger.Info("dataset catalog loaded", slog.Int("files", len(names)))
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
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

func openAudit(cfg config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := auditpostgres.Open(ctx, auditpostgres.DBConfig{
		DSN:             cfg.Audit.DSN,
		MaxOpenConns:    cfg.Audit.MaxOpenConns,
		MaxIdleConns:    cfg.Audit.MaxIdleConns,
		ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
