package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"fintrack/internal/core"
)

type budgetCmd struct{}

func (*budgetCmd) Name() string     { return "budget" }
func (*budgetCmd) Synopsis() string { return "manage monthly budget limits" }
func (*budgetCmd) Usage() string {
	return `fintrack budget ls
fintrack budget set <category|GLOBAL> <amount>
fintrack budget rm <category|GLOBAL>
fintrack budget sync

  Limits are monthly. GLOBAL caps total spending across categories.
  Changes made offline are marked * until they reach the remote store.
`
}

func (*budgetCmd) SetFlags(*flag.FlagSet) {}

func (*budgetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) == 0 {
		args = []string{"ls"}
	}
	want := map[string]int{"ls": 1, "set": 3, "rm": 2, "sync": 1}
	if n, ok := want[args[0]]; !ok || len(args) != n {
		fmt.Fprint(os.Stderr, (&budgetCmd{}).Usage())
		return subcommands.ExitUsageError
	}

	var limit core.BudgetLimit
	if args[0] == "set" {
		cents, err := core.ParseDecimalToCents(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: amount %q: %v\n", args[2], err)
			return subcommands.ExitUsageError
		}
		limit = core.BudgetLimit{Scope: args[1], Limit: core.Money{Cents: cents}}
	}

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	switch args[0] {
	case "set":
		if err := a.engine.SetBudget(ctx, limit); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	case "rm":
		removed, err := a.engine.RemoveBudget(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		if !removed {
			fmt.Fprintf(os.Stderr, "No budget for %s\n", args[1])
			return subcommands.ExitFailure
		}
	case "sync":
		if err := a.engine.SyncBudgets(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	pending := map[string]bool{}
	for _, scope := range a.engine.PendingBudgets() {
		pending[strings.ToLower(scope)] = true
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCOPE\tLIMIT")
	for _, l := range a.engine.Budgets().Limits() {
		mark := ""
		if pending[strings.ToLower(l.Scope)] {
			mark = " *"
		}
		fmt.Fprintf(tw, "%s%s\t%s\n", l.Scope, mark, l.Limit.Format(a.currency()))
	}
	_ = tw.Flush()
	return subcommands.ExitSuccess
}
