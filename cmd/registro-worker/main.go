package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"registro/internal/amqp"
	"registro/internal/config"
	"registro/internal/export"
	"registro/internal/export/google"
	"registro/internal/export/memory"
	"registro/internal/ledger"
	applog "registro/internal/log"
	"registro/internal/services"
	"registro/internal/storage"
	"registro/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting registro-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	loc := cfg.Location()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var writer export.MasterWriter
	switch cfg.ExportBackend {
	case "sheets":
		client, err := google.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		writer = client
		logger.Info("Google Sheets export backend initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	case "memory":
		writer = memory.New()
		logger.Info("In-memory export backend initialized")
	default:
		logger.Info("Export disabled", "backend", cfg.ExportBackend)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	engine := ledger.NewEngine(repo, logger.WithComponent(applog.ComponentLedger).Logger)
	service := services.NewLedgerService(repo, engine, amqpClient, loc)
	ledgerWorker := worker.NewLedgerWorker(service, repo, writer, loc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.Consume(ctx, ledgerWorker.HandleDaySave, ledgerWorker.HandleMasterExport)
	})

	// Periodic save of the current day, in case queued messages are lost.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SavePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := ledgerWorker.SaveCurrentDay(ctx); err != nil {
					logger.Error("Periodic save failed", "error", err)
				}
				if err := ledgerWorker.ExportRecentMasters(ctx, cfg.ExportBatchSize); err != nil {
					logger.Error("Periodic export failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
