package main

import (
	"context"
	"fmt"
	"os"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/connectivity"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/remote"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// app is the wiring shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	engine *services.SyncEngine
	client remote.Client
	// probe is nil when connectivity is forced or the backend has no health check.
	probe   *connectivity.Probe
	closers []func()
}

func openApp(ctx context.Context) (*app, error) {
	logger := cli.SetupLoggerTo(os.Stderr, log.ComponentApp)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}
	if res.Cleanup != nil {
		a.closers = append(a.closers, func() { _ = res.Cleanup() })
	}

	var oracle connectivity.Oracle
	switch {
	case cfg.ForceOffline:
		oracle = connectivity.NewManual(connectivity.Disconnected)
	case res.Health != nil:
		a.probe = connectivity.NewProbe(connectivity.CheckFunc(res.Health), cfg.ProbeInterval, cfg.ProbeTimeout)
		a.probe.Check(ctx)
		oracle = a.probe
	default:
		oracle = connectivity.NewManual(connectivity.Connected)
	}

	db, err := cli.InitSQLite(logger, cfg.LocalDBPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	a.client = res.Client
	a.engine = services.NewSyncEngine(storage.NewKVStore(db), res.Client, oracle, services.SyncEngineConfig{
		Token:    cfg.AuthToken,
		Notifier: a.notifier(),
		Logger:   logger,
		Currency: cfg.Currency,
	})

	report := a.engine.Load(ctx)
	if len(report.Corrupt) > 0 {
		logger.Warn("Local state was corrupt and has been reset", "keys", report.Corrupt)
	}
	return a, nil
}

// notifier prints alerts for the user and forwards them to whichever
// channels are configured.
func (a *app) notifier() notify.Notifier {
	n := notify.Multi{
		notify.Func(func(_ context.Context, title, body string) error {
			_, err := fmt.Fprintf(os.Stdout, "%s: %s\n", title, body)
			return err
		}),
	}
	if a.cfg.AMQPURL != "" {
		client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
		if err != nil {
			a.logger.Warn("Budget alerts will not be published", log.FieldError, err)
		} else {
			a.closers = append(a.closers, func() { _ = client.Close() })
			n = append(n, notify.NewAMQP(client))
		}
	}
	if a.cfg.DiscordBotToken != "" {
		d, err := notify.NewDiscord(a.cfg.DiscordBotToken, a.cfg.DiscordChannelID)
		if err != nil {
			a.logger.Warn("Discord alerts disabled", log.FieldError, err)
		} else {
			a.closers = append(a.closers, func() { _ = d.Close() })
			n = append(n, d)
		}
	}
	return n
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// online reports whether the remote store was reachable at startup.
func (a *app) online() bool {
	if a.cfg.ForceOffline {
		return false
	}
	return a.probe == nil || a.probe.Status() == connectivity.Connected
}

func (a *app) currency() string { return a.engine.Currency() }
