package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"eaccountant/internal/amqp"
	"eaccountant/internal/backend"
	"eaccountant/internal/cli"
	"eaccountant/internal/services"
	"eaccountant/internal/worker"
)

func main() {
	retryFailed := flag.Bool("retry-failed", false, "requeue exports that exhausted their attempts before starting")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))

	logger.Info("Starting publish-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	if result.Publisher == nil {
		logger.Error("No publish destination configured, set GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	procCfg := services.DefaultPublishProcessorConfig()
	procCfg.PollInterval = cfg.PublishInterval
	procCfg.BatchSize = cfg.PublishBatchSize
	procCfg.MaxRetries = cfg.PublishMaxRetries
	processor := services.NewPublishProcessor(sqliteRepo, result.Publisher, procCfg)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - relying on journal polling", "interval", procCfg.PollInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Publish processor stop error", "error", err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Error("AMQP close error", "error", err)
			}
		}
		if err := sqliteRepo.Close(); err != nil {
			logger.Error("SQLite close error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	if *retryFailed {
		n, err := processor.RetryFailed(ctx)
		if err != nil {
			logger.Error("Failed to requeue failed exports", "error", err)
			os.Exit(1)
		}
		logger.Info("Requeued failed exports", "count", n)
	}
	if stats, err := processor.Stats(ctx); err == nil {
		logger.Info("Export journal",
			"pending", stats.Pending,
			"processing", stats.Processing,
			"published", stats.Published,
			"failed", stats.Failed)
	}

	// Pending entries from before a restart are picked up by the first poll
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start publish processor", "error", err)
		os.Exit(1)
	}

	if amqpClient != nil {
		publishWorker := worker.NewPublishWorker(sqliteRepo, result.Publisher, cfg.PublishMaxRetries)
		go func() {
			if err := amqpClient.Consume(ctx, publishWorker.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
				// The processor keeps polling without the broker
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
