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
)

var errCategoriesOffline = errors.New("categories are managed on the remote store, which is unreachable")

type categoryCmd struct{}

func (*categoryCmd) Name() string     { return "category" }
func (*categoryCmd) Synopsis() string { return "manage your categories on the remote store" }
func (*categoryCmd) Usage() string {
	return `fintrack category ls
fintrack category add [-icon <name>] [-color <#hex>] [-t expense|income] <name>
fintrack category rm <id>

  Categories live on the remote store and need a connection.
`
}

func (*categoryCmd) SetFlags(*flag.FlagSet) {}

func (c *categoryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) == 0 {
		args = []string{"ls"}
	}

	var draft core.Category
	switch args[0] {
	case "ls":
		if len(args) != 1 {
			return c.usage()
		}
	case "rm":
		if len(args) != 2 {
			return c.usage()
		}
	case "add":
		d, err := parseCategory(args[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		draft = d
	default:
		return c.usage()
	}

	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	categories, ok := a.client.(remote.CategoryClient)
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: this backend does not manage categories")
		return subcommands.ExitFailure
	}
	if !a.online() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", errCategoriesOffline)
		return subcommands.ExitFailure
	}

	token := a.cfg.AuthToken
	switch args[0] {
	case "add":
		created, err := categories.CreateCategory(ctx, token, draft)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Created %s (%s)\n", created.Name, created.ID)
		return subcommands.ExitSuccess
	case "rm":
		err := categories.DeleteCategory(ctx, token, args[1])
		switch {
		case errors.Is(err, remote.ErrNotFound):
			fmt.Fprintf(os.Stderr, "No category %s\n", args[1])
			return subcommands.ExitFailure
		case err != nil:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Removed %s\n", args[1])
		return subcommands.ExitSuccess
	}

	list, err := categories.ListCategories(ctx, token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printCategories(os.Stdout, list)
	return subcommands.ExitSuccess
}

func (c *categoryCmd) usage() subcommands.ExitStatus {
	fmt.Fprint(os.Stderr, c.Usage())
	return subcommands.ExitUsageError
}

// parseCategory reads the flags and name that follow "add".
func parseCategory(args []string) (core.Category, error) {
	fs := flag.NewFlagSet("category add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	icon := fs.String("icon", "tag", "Icon name")
	color := fs.String("color", "#808080", "Hex color")
	kind := fs.String("t", "", "Type: expense or income")
	if err := fs.Parse(args); err != nil {
		return core.Category{}, err
	}
	if fs.NArg() == 0 {
		return core.Category{}, core.ErrEmptyCategory
	}
	c := core.Category{
		Name:  strings.Join(fs.Args(), " "),
		Icon:  *icon,
		Color: *color,
		Kind:  core.Kind(*kind),
	}.Normalize()
	return c, c.Validate()
}

func printCategories(w io.Writer, list []core.Category) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tICON\tCOLOR")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Kind, c.Icon, c.Color)
	}
	_ = tw.Flush()
}
