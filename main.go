package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	redcap "medstat/adapters/api"
	"medstat/adapters/excel"
	"medstat/adapters/postgres"
	"medstat/app"
	"medstat/internal/api"
	"medstat/internal/batch"
	"medstat/internal/config"
	"medstat/internal/errors"
	"medstat/internal/ingest"
	"medstat/internal/logging"
	"medstat/internal/migration"
	"medstat/internal/observability"
	"medstat/ports"
	"medstat/ui"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase connects to the run ledger and applies the schema
func initDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, errors.ExternalServiceError("postgres", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	return db, nil
}

// docTopics lists one page per analysis plus the data and batch guides
func docTopics(registry *app.Registry) []ui.Topic {
	defs := registry.Definitions()
	topics := make([]ui.Topic, 0, len(defs)+2)
	for _, d := range defs {
		topics = append(topics, ui.Topic{Name: d.Name, Title: d.Name, Route: d.Route, Summary: d.Summary})
	}
	return append(topics,
		ui.Topic{Name: "data", Title: "data ingestion", Route: "/api/data/upload", Summary: "Upload CSV or Excel files, or pull records from REDCap."},
		ui.Topic{Name: "batch", Title: "batch", Route: "/api/batch", Summary: "Run several analyses in one request with bounded concurrency."},
	)
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ledger ports.RunLedger
	if cfg.LedgerEnabled() {
		db, err := initDatabase(ctx, cfg)
		if err != nil {
			logger.Error("failed to initialize run ledger", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		ledger = postgres.NewRunRepository(db)
		logger.Info("run ledger enabled")
	} else {
		logger.Info("DATABASE_URL not set, run ledger disabled")
	}

	metrics := observability.NewMetrics()
	registry := app.NewRegistry(app.Options{
		LogisticMaxIter:   cfg.Analysis.LogisticMaxIter,
		LogisticTolerance: cfg.Analysis.LogisticTolerance,
		ROCMaxPoints:      cfg.Analysis.ROCMaxPoints,
	})
	executor := batch.NewExecutor(cfg.Batch.MaxConcurrency, cfg.Batch.MaxItems, registry.Cost, logger)
	analyses := app.NewAnalysisService(registry, executor, ledger, metrics, logger)
	data := app.NewDataService(
		excel.NewDataReader(logger),
		redcap.NewREDCapClient(cfg.Ingest.REDCapTimeout, logger),
		ingest.NewDescriber(cfg.Ingest.CategoricalThreshold, cfg.Ingest.PreviewRows),
		metrics,
		logger,
	)

	docs, err := ui.NewApp(docTopics(registry))
	if err != nil {
		logger.Error("failed to build docs site", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(api.Options{
		Port:           cfg.Server.Port,
		GinMode:        cfg.Server.GinMode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		LedgerEnabled:  cfg.LedgerEnabled(),
	}, analyses, data, metrics, docs, logger)

	logger.Info("starting medstat", "port", cfg.Server.Port, "analyses", len(registry.Definitions()))
	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
