// Command fintrack-worker forwards budget alerts from the broker to Discord.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	discord, err := notify.NewDiscord(cfg.DiscordBotToken, cfg.DiscordChannelID)
	if err != nil {
		logger.Error("Failed to initialize Discord", log.FieldError, err)
		os.Exit(1)
	}
	defer discord.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewAlertWorker(discord, worker.AlertWorkerConfig{
		MaxAge:       cfg.AlertMaxAge,
		DedupeWindow: cfg.AlertDedupeWindow,
		Logger:       logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	logger.Info("Starting fintrack-worker", "queue", cfg.AMQPQueue)
	if err := client.ConsumeBudgetAlerts(ctx, w.HandleBudgetAlert); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Alert consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	delivered, dropped := w.Stats()
	logger.Info("Worker stopped", "delivered", delivered, "dropped", dropped)
}
