package main

import (
	"context"
	"errors"
	"os"
	"time"

	"feedesk/internal/amqp"
	"feedesk/internal/cache"
	"feedesk/internal/cli"
	"feedesk/internal/config"
	"feedesk/internal/ledger"
	gledger "feedesk/internal/ledger/google"
	memledger "feedesk/internal/ledger/memory"
	"feedesk/internal/log"
	"feedesk/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting feedesk-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	var appender ledger.Appender
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gledger.New(context.Background(), cfg.GoogleSpreadsheetID, cfg.LedgerSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets ledger", "error", err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets ledger initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.LedgerSheetName)
	} else {
		appender = memledger.New()
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, payment events are kept in memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	ledgerWorker := worker.NewLedgerWorker(appender)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", "error", err)
		}
	})

	go cache.NewJanitor(ledgerWorker.Seen()).Run(ctx, time.Hour)

	go func() {
		err := amqpClient.ConsumePaymentEvents(ctx, ledgerWorker.HandlePaymentEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("Consuming payment events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
