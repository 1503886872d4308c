// Wallet link service: Joey webhook ingestion and ledger balance sync.
// Usage: go run ./cmd/server
//
// @title                       Wallet Link API
// @version                     1.0
// @description                 Wallet custodian webhook ingestion and ledger balance sync.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/api"
	"github.com/HefaCom/health-florence-sub002/internal/client"
	"github.com/HefaCom/health-florence-sub002/internal/config"
	"github.com/HefaCom/health-florence-sub002/internal/handler"
	"github.com/HefaCom/health-florence-sub002/internal/logging"
	"github.com/HefaCom/health-florence-sub002/wallet"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; the process environment always wins
	envErr := godotenv.Load()
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", envErr)
	}

	if err := config.Init(); err != nil {
		return err
	}
	if err := config.PromptForWebhookSecret(); err != nil {
		return err
	}
	cfg := config.Get()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.JoeyWebhookSecret == "" {
		logger.Warn("JOEY_WEBHOOK_SECRET is empty; webhook requests will fail until it is set")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	store := client.NewGraphQLClient(cfg.GraphQLURL, cfg.GraphQLAPIKey, cfg.GraphQLAPIKeyHeader, httpClient)
	ledger := client.NewXRPLClient(cfg.XRPLRPCURL, httpClient)

	webhook := wallet.NewWebhookProcessor(store, cfg.JoeyWebhookSecret, config.GetTimeout(), logger.Named("webhook"))
	balanceSync := wallet.NewBalanceSyncService(store, ledger, cfg.BalanceSyncToken, config.GetTimeout(), logger.Named("balance"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limiter *handler.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = handler.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
		limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)
	}

	router := api.SetupRouter(api.Deps{
		Wallet:      handler.NewWalletHandler(webhook, balanceSync, cfg.MaxBodyBytes, logger),
		RateLimiter: limiter,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + config.GetPort(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
