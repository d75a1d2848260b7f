package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"fintrack/internal/cli"
	"fintrack/internal/services"
)

type fetchCmd struct{}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "refresh the local list from the remote store" }
func (*fetchCmd) Usage() string {
	return `fintrack fetch

  Replaces synced transactions with the remote list. Pending local
  changes are kept.
`
}

func (*fetchCmd) SetFlags(*flag.FlagSet) {}

func (*fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	status, err := a.engine.FetchAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	fmt.Printf("%d transaction(s), %s\n", len(a.engine.Transactions()), status)
	if status == services.FetchStale {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type syncCmd struct{}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "upload pending changes" }
func (*syncCmd) Usage() string {
	return `fintrack sync

  Replays the pending queue against the remote store in order.
`
}

func (*syncCmd) SetFlags(*flag.FlagSet) {}

func (*syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	report, err := a.engine.Reconcile(ctx)
	fmt.Printf("synced %d of %d, %d still pending\n", report.Succeeded, report.Attempted, report.Remaining)

	var partial *services.PartialSyncError
	switch {
	case errors.Is(err, services.ErrOffline):
		fmt.Fprintln(os.Stderr, "Error: remote store unreachable, nothing was sent")
		return subcommands.ExitFailure
	case errors.As(err, &partial):
		for _, e := range partial.Errs {
			fmt.Fprintf(os.Stderr, "  %v\n", e)
		}
		return subcommands.ExitFailure
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type watchCmd struct{}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "stay running and sync whenever the remote comes back" }
func (*watchCmd) Usage() string {
	return `fintrack watch

  Probes the remote store and reconciles on every offline to online
  transition until interrupted.
`
}

func (*watchCmd) SetFlags(*flag.FlagSet) {}

func (*watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	runCtx, done := cli.GracefulShutdown(a.logger, 10*time.Second, nil)
	if a.probe != nil {
		go a.probe.Run(runCtx)
	}
	a.logger.Info("Watching for connectivity changes", "pending", a.engine.QueueLen())
	if err := a.engine.Run(runCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	<-done
	return subcommands.ExitSuccess
}
