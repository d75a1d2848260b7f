package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"fintrack/internal/core"
	"fintrack/internal/remote"
	"fintrack/internal/services"
)

// draftFlags are the transaction fields shared by add and edit.
type draftFlags struct {
	amount   string
	category string
	kind     string
	date     string
	payment  string
	note     string
}

func (d *draftFlags) register(f *flag.FlagSet) {
	f.StringVar(&d.amount, "a", "", "Amount in major units, e.g. 12.50")
	f.StringVar(&d.category, "c", "", "Category")
	f.StringVar(&d.kind, "t", "", "Type: expense or income")
	f.StringVar(&d.date, "d", "", "Date (YYYY-MM-DD), defaults to today")
	f.StringVar(&d.payment, "pay", "", "Payment method, e.g. "+strings.Join(core.PaymentMethods, ", "))
	f.StringVar(&d.note, "n", "", "Note (max 200 characters)")
}

func (d *draftFlags) draft() (core.Draft, error) {
	cents, err := core.ParseDecimalToCents(d.amount)
	if err != nil {
		return core.Draft{}, fmt.Errorf("amount %q: %w", d.amount, err)
	}
	out := core.Draft{
		Amount:        core.Money{Cents: cents},
		Category:      d.category,
		Kind:          core.Kind(d.kind),
		PaymentMethod: d.payment,
		Note:          d.note,
	}
	if d.date != "" {
		if out.Date, err = remote.ParseDate(d.date); err != nil {
			return core.Draft{}, err
		}
	}
	return out, nil
}

// patch builds a patch from the flags that were set on the command line.
func (d *draftFlags) patch(f *flag.FlagSet) (core.Patch, error) {
	var p core.Patch
	var err error
	f.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "a":
			var cents int64
			if cents, err = core.ParseDecimalToCents(d.amount); err == nil {
				p.Amount = &core.Money{Cents: cents}
			}
		case "c":
			p.Category = &d.category
		case "t":
			k := core.Kind(d.kind)
			p.Kind = &k
		case "d":
			var date core.Date
			if date, err = remote.ParseDate(d.date); err == nil {
				p.Date = &date
			}
		case "pay":
			p.PaymentMethod = &d.payment
		case "n":
			p.Note = &d.note
		}
	})
	return p, err
}

type addCmd struct {
	fields draftFlags
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record a transaction" }
func (*addCmd) Usage() string {
	return `fintrack add -a <amount> -c <category> [-t income] [-d <date>] [-pay <method>] [-n <note>]

  Records a transaction. Offline, it is stored with a provisional id and
  uploaded by the next sync.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) { c.fields.register(f) }

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	d, err := c.fields.draft()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	t, err := a.engine.Add(ctx, d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	state := "synced"
	if t.Provisional {
		state = "pending sync"
	}
	fmt.Printf("%s %s %s (%s)\n", t.ID, t.Category, t.Amount.Format(a.currency()), state)
	return subcommands.ExitSuccess
}

type listCmd struct {
	month string
	fetch bool
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list local transactions" }
func (*listCmd) Usage() string {
	return `fintrack list [-m YYYY-MM] [-f]

  Lists transactions newest first. Pending ones are marked with '*'.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "Only show this month (YYYY-MM)")
	f.BoolVar(&c.fetch, "f", false, "Fetch from the remote store first")
}

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var year, month int
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

	if c.fetch {
		if _, err := a.engine.FetchAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	list := a.engine.Transactions()
	if c.month != "" {
		filtered := list[:0]
		for _, t := range list {
			if t.Date.Year() == year && int(t.Date.Month()) == month {
				filtered = append(filtered, t)
			}
		}
		list = filtered
	}
	writeTransactions(os.Stdout, list, a.currency())
	return subcommands.ExitSuccess
}

func writeTransactions(w io.Writer, list []core.Transaction, currency string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tNOTE")
	for _, t := range list {
		id := t.ID
		if t.Provisional {
			id += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			id, t.Date.Format("2006-01-02"), t.Kind.Normalize(), t.Category, t.Amount.Format(currency), t.Note)
	}
	_ = tw.Flush()
}

type editCmd struct {
	fields draftFlags
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "change fields of a transaction" }
func (*editCmd) Usage() string {
	return `fintrack edit [-a <amount>] [-c <category>] [-t <type>] [-d <date>] [-pay <method>] [-n <note>] <id>

  Updates only the given fields. Synced transactions can only be edited
  while online.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) { c.fields.register(f) }

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: edit takes exactly one transaction id")
		return subcommands.ExitUsageError
	}
	p, err := c.fields.patch(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	t, err := a.engine.Edit(ctx, f.Arg(0), p)
	switch {
	case errors.Is(err, services.ErrOfflineEdit):
		fmt.Fprintln(os.Stderr, "Error: synced transactions cannot be edited while offline")
		return subcommands.ExitFailure
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s %s %s\n", t.ID, t.Category, t.Amount.Format(a.currency()))
	return subcommands.ExitSuccess
}

type rmCmd struct{}

func (*rmCmd) Name() string     { return "rm" }
func (*rmCmd) Synopsis() string { return "delete transactions" }
func (*rmCmd) Usage() string {
	return `fintrack rm <id>...

  Deletes transactions locally. Remote deletes that cannot happen now are
  queued for the next sync.
`
}

func (*rmCmd) SetFlags(*flag.FlagSet) {}

func (*rmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: rm needs at least one transaction id")
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	status := subcommands.ExitSuccess
	for _, id := range f.Args() {
		if err := a.engine.Delete(ctx, id); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", id, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%s removed\n", id)
	}
	if n := a.engine.QueueLen(); n > 0 {
		fmt.Printf("%d change(s) waiting to sync\n", n)
	}
	return status
}
