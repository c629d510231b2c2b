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

	"github.com/ganacsi/ganacsi/internal/app"
	"github.com/ganacsi/ganacsi/internal/assistant"
	"github.com/ganacsi/ganacsi/internal/auth"
	"github.com/ganacsi/ganacsi/internal/invoice"
	"github.com/ganacsi/ganacsi/internal/observability"
	"github.com/ganacsi/ganacsi/internal/platform/cache"
	"github.com/ganacsi/ganacsi/internal/platform/db"
	"github.com/ganacsi/ganacsi/internal/sales"
	"github.com/ganacsi/ganacsi/internal/shared"
	"github.com/ganacsi/ganacsi/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.DBMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()

	metrics := observability.NewMetrics()

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(auth.NewRepository(pool), issuer, jobClient, auth.Config{
		ResetTokenTTL: cfg.ResetTokenTTL,
		ResetURLBase:  cfg.ResetURLBase,
	}, logger)

	salesService := sales.NewService(sales.NewRepository(pool), sales.ServiceConfig{
		Cache:       sales.NewCache(redisClient, cfg.SalesCacheTTL),
		Idempotency: shared.NewIdempotencyStore(pool),
		Observer:    metrics,
		Logger:      logger,
	})
	salesHandler := sales.NewHandler(logger, salesService)
	invoiceHandler := invoice.NewHandler(logger, salesService, invoice.NewRepository(pool), invoice.Letterhead{
		Name:    cfg.BusinessName,
		Address: cfg.BusinessAddress,
		Phone:   cfg.BusinessPhone,
		Email:   cfg.BusinessEmail,
	})
	salesHandler.SetInvoiceHandler(invoiceHandler)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Issuer:           issuer,
		AuthHandler:      auth.NewHandler(logger, authService),
		SalesHandler:     salesHandler,
		AssistantHandler: assistant.NewHandler(logger, assistant.NewRepository(pool)),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
