package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"eaccountant/internal/amqp"
	"eaccountant/internal/backend"
	"eaccountant/internal/cli"
	apphttp "eaccountant/internal/http"
	applog "eaccountant/internal/log"
	"eaccountant/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize report source", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	// AMQP is optional; without it the in-process processor publishes
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, publishing falls back to polling", "error", err)
			amqpClient = nil
		}
	}

	appLogger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentApp,
		Handler:   logger.Handler(),
	})

	svc := services.NewReportService(result.Reader, sqliteRepo, amqpClient, services.ReportServiceConfig{
		Currency:         cfg.Currency,
		PDFFontPath:      cfg.PDFFontPath,
		SessionTTL:       cfg.SessionTTL,
		SessionCacheSize: cfg.SessionCacheSize,
		LowStock:         services.DefaultReportServiceConfig().LowStock,
		Logger:           appLogger,
	})

	var processor *services.PublishProcessor
	if result.Publisher != nil && amqpClient == nil {
		procCfg := services.DefaultPublishProcessorConfig()
		procCfg.PollInterval = cfg.PublishInterval
		procCfg.BatchSize = cfg.PublishBatchSize
		procCfg.MaxRetries = cfg.PublishMaxRetries
		processor = services.NewPublishProcessor(sqliteRepo, result.Publisher, procCfg)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.ServerOptions{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             appLogger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Publish processor stop error", "error", err)
			}
		}
		if err := svc.Close(); err != nil {
			logger.Error("Report service close error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start publish processor", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Starting eaccountant server",
		"port", cfg.Port,
		"backend", backendCfg.Type,
		"publishing", result.Publisher != nil,
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
