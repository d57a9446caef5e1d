package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"medstat/internal/logging"
	"medstat/internal/migration"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Applies the run-ledger schema. The database URL comes from the first
// argument or DATABASE_URL.
func main() {
	_ = godotenv.Load()
	logger := logging.Setup(logging.Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})

	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		logger.Error("usage: migrate <database_url> (or set DATABASE_URL)")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	runner := migration.NewRunner()
	start := time.Now()
	if err := runner.Run(ctx, db); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("migration complete", "version", runner.Version(), "elapsed", time.Since(start))
}
