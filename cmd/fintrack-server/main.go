// Command fintrack-server serves the remote transaction store over HTTP,
// backed by SQLite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/adapters"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)

	db, err := cli.InitSQLite(logger, cfg.ServerDBPath)
	if err != nil {
		os.Exit(1)
	}
	repo := storage.NewSQLiteRepository(db)
	defer repo.Close()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		Store:              adapters.NewSQLiteAdapter(repo),
		Budgets:            repo,
		Categories:         repo,
		Ready:              repo.Ping,
		Tokens:             cfg.AuthTokens,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("HTTP shutdown failed", log.FieldError, err)
		}
	})

	go func() {
		logger.Info("Starting fintrack-server", "addr", srv.Addr, "db", cfg.ServerDBPath, "owners", len(cfg.AuthTokens))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
