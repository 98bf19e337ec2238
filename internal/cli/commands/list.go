package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/resource"
)

// NewListCmd creates the list command
func NewListCmd(opts *Options) *cobra.Command {
	var (
		search string
		page   int
		limit  int
	)

	cmd := &cobra.Command{
		Use:     "ls [kind]",
		Aliases: []string{"list"},
		Short:   "List content records",
		Long: fmt.Sprintf(`List records of a content type.

Available types: %s
When no type is given, an interactive selection is shown.`, strings.Join(resource.Slugs(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, args, search, page, limit)
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Only show records matching this text")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Records per page (max 100)")

	return cmd
}

func runList(cmd *cobra.Command, opts *Options, args []string, search string, page, limit int) error {
	if page < 1 {
		return fmt.Errorf("page must be 1 or greater")
	}

	var kind *resource.Kind
	var err error
	switch {
	case len(args) == 1:
		kind, err = lookupKind(args[0])
	case isInteractive():
		kind, err = promptKind()
	default:
		err = fmt.Errorf("a content type is required (one of: %s)", strings.Join(resource.Slugs(), ", "))
	}
	if err != nil {
		return err
	}
	if kind.Singleton {
		return fmt.Errorf("%s has a single record; use 'sitecms show %s'", kind.Slug, kind.Slug)
	}

	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	tok, err := s.token("ls")
	if err != nil {
		return err
	}

	result, err := s.api.List(cmd.Context(), tok, kind, apiclient.ListQuery{
		Skip:   (page - 1) * limit,
		Limit:  limit,
		Search: search,
	})
	if err != nil {
		return s.check(err)
	}

	out := cmd.OutOrStdout()
	if len(result.Items) == 0 {
		fmt.Fprintf(out, "No %s found.\n", strings.ToLower(kind.Title))
		return nil
	}

	columns := kind.Columns()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"ID"}
	rule := []string{"──"}
	for _, f := range columns {
		header = append(header, strings.ToUpper(f.Label))
		rule = append(rule, strings.Repeat("─", len(f.Label)))
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))
	fmt.Fprintln(w, strings.Join(rule, "\t"))

	for _, item := range result.Items {
		row := []string{item.ID()}
		for _, f := range columns {
			row = append(row, truncate(resource.Format(f, item[f.Name]), 40))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()

	pages := result.Pages
	if pages == 0 {
		pages = 1
	}
	fmt.Fprintf(out, "\nPage %d of %d (%d total)\n", page, pages, result.Total)
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
