package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sitecms/sitecms/internal/resource"
)

// NewShowCmd creates the show command
func NewShowCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> [id]",
		Short: "Show one content record",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, opts, args)
		},
	}
}

func runShow(cmd *cobra.Command, opts *Options, args []string) error {
	kind, err := lookupKind(args[0])
	if err != nil {
		return err
	}

	var id string
	if len(args) == 2 {
		id = args[1]
	}
	if id == "" && !kind.Singleton {
		return fmt.Errorf("an id is required for %s", kind.Slug)
	}

	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	tok, err := s.token("show")
	if err != nil {
		return err
	}

	item, err := s.api.Get(cmd.Context(), tok, kind, id)
	if err != nil {
		return s.check(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n\n", kind.Singular, kind.Label(item))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", item.ID())
	for _, f := range kind.Fields {
		fmt.Fprintf(w, "%s\t%s\n", f.Label, strings.ReplaceAll(resource.Format(f, item[f.Name]), "\n", " "))
	}
	return w.Flush()
}
