package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type insightCmd struct{}

func (*insightCmd) Name() string     { return "insight" }
func (*insightCmd) Synopsis() string { return "compare this month's spending with last month" }
func (*insightCmd) Usage() string {
	return `fintrack insight
`
}

func (*insightCmd) SetFlags(*flag.FlagSet) {}

func (*insightCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	in := services.NewInsightEngine(a.currency()).Generate(a.engine.Transactions(), time.Now())
	if in == nil {
		fmt.Println("No spending recorded yet.")
		return subcommands.ExitSuccess
	}
	fmt.Printf("%s\n%s\n%s\n", in.Title, in.Message, in.Detail)
	return subcommands.ExitSuccess
}

type reportCmd struct {
	month string
	raw   bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "display a monthly spending report" }
func (*reportCmd) Usage() string {
	return `fintrack report [-m YYYY-MM] [-raw]

  Displays spending by category and budget usage for a month.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "Month to report on (YYYY-MM), defaults to the current month")
	f.BoolVar(&c.raw, "raw", false, "Print markdown without terminal styling")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	now := time.Now()
	year, month := now.Year(), int(now.Month())
	if c.month != "" {
		var err error
		if year, month, err = parseMonth(c.month); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	list := a.engine.Transactions()
	md := monthMarkdown(services.MonthOverview(list, year, month), a.engine.Budgets(), a.currency(), a.engine.QueueLen())
	if year == now.Year() && month == int(now.Month()) {
		if in := services.NewInsightEngine(a.currency()).Generate(list, now); in != nil {
			md += fmt.Sprintf("\n## %s\n\n%s %s\n", in.Title, in.Message, in.Detail)
		}
	}

	if c.raw {
		fmt.Print(md)
		return subcommands.ExitSuccess
	}
	printMarkdown(md)
	return subcommands.ExitSuccess
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

// monthMarkdown renders the overview of one month with the usage of every
// budget limit.
func monthMarkdown(ov core.MonthOverview, budgets core.BudgetTable, currency string, pending int) string {
	var b strings.Builder
	title := time.Date(ov.Year, time.Month(ov.Month), 1, 0, 0, 0, 0, time.UTC).Format("January 2006")
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Spent:** %s  \n**Income:** %s\n", ov.Total.Format(currency), ov.Income.Format(currency))
	if pending > 0 {
		fmt.Fprintf(&b, "\n_%d change(s) not yet synced._\n", pending)
	}

	if len(ov.ByCategory) > 0 {
		b.WriteString("\n## Spending by category\n\n| Category | Amount | Share |\n|---|---:|---:|\n")
		for _, c := range ov.ByCategory {
			fmt.Fprintf(&b, "| %s | %s | %s%% |\n", c.Name, c.Amount.Format(currency), share(c.Amount, ov.Total))
		}
	}

	limits := budgets.Limits()
	if len(limits) > 0 {
		b.WriteString("\n## Budgets\n\n| Scope | Spent | Limit | Used | Status |\n|---|---:|---:|---:|---|\n")
		for _, l := range limits {
			spent := ov.Total
			if !l.IsGlobal() {
				spent = core.Money{}
				for _, c := range ov.ByCategory {
					if l.Matches(c.Name) {
						spent = spent.Add(c.Amount)
					}
				}
			}
			alert := services.Alert{
				Severity: services.Classify(spent, l.Limit),
				Scope:    l.Scope,
				Spent:    spent,
				Limit:    l.Limit,
				Ratio:    decimal.NewFromInt(spent.Cents).Div(decimal.NewFromInt(l.Limit.Cents)),
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s%% | %s |\n",
				l.Scope, spent.Format(currency), l.Limit.Format(currency), alert.Percent(), alert.Severity)
		}
	}
	return b.String()
}

func share(part, whole core.Money) string {
	if whole.Cents == 0 {
		return "0"
	}
	return decimal.NewFromInt(part.Cents * 100).Div(decimal.NewFromInt(whole.Cents)).Round(0).String()
}

func parseMonth(s string) (year, month int, err error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q, want YYYY-MM", s)
	}
	return t.Year(), int(t.Month()), nil
}
