package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ganacsi/ganacsi/internal/app"
	"github.com/ganacsi/ganacsi/internal/auth"
	jobmetrics "github.com/ganacsi/ganacsi/internal/jobs"
	"github.com/ganacsi/ganacsi/internal/platform/db"
	"github.com/ganacsi/ganacsi/internal/shared"
	"github.com/ganacsi/ganacsi/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := jobmetrics.NewMetrics(registry)

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	authService := auth.NewService(auth.NewRepository(pool), issuer, jobClient, auth.Config{
		ResetTokenTTL: cfg.ResetTokenTTL,
		ResetURLBase:  cfg.ResetURLBase,
	}, logger)

	emailJob := &jobs.EmailJob{
		Sender: jobs.NewSMTPSender(jobs.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}),
		Logger:  logger,
		Metrics: metrics,
	}
	forgotJob := &jobs.ForgotPasswordJob{
		Issuer:  authService,
		Logger:  logger,
		Metrics: metrics,
	}
	maintenance := &jobs.MaintenanceJob{
		Tokens:  authService,
		Keys:    shared.NewIdempotencyStore(pool),
		Logger:  logger,
		Metrics: metrics,
	}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	if err != nil {
		logger.Error("build idempotency cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: emailJob.Handle},
			{Type: jobs.TaskTypeForgotPassword, Handler: forgotJob.Handle},
			{Type: jobs.TaskPurgeResetTokens, Handler: maintenance.HandlePurgeResetTokens},
			{Type: jobs.TaskIdempotencyCleanup, Handler: maintenance.HandleIdempotencyCleanup},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "5 * * * *", Task: jobs.NewPurgeResetTokensTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 2 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
