// Command fintrack is the offline-first client: it records transactions
// locally and reconciles them with the remote store when it is reachable.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"fintrack/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&addCmd{}, "transactions")
	commander.Register(&listCmd{}, "transactions")
	commander.Register(&editCmd{}, "transactions")
	commander.Register(&rmCmd{}, "transactions")

	commander.Register(&fetchCmd{}, "sync")
	commander.Register(&syncCmd{}, "sync")
	commander.Register(&watchCmd{}, "sync")

	commander.Register(&budgetCmd{}, "budgets")
	commander.Register(&categoryCmd{}, "budgets")
	commander.Register(&insightCmd{}, "reports")
	commander.Register(&reportCmd{}, "reports")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
