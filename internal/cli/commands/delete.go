package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewDeleteCmd creates the delete command
func NewDeleteCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rm <kind> <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a content record",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, opts, args[0], args[1])
		},
	}

	return cmd
}

func runDelete(cmd *cobra.Command, opts *Options, slug, id string) error {
	kind, err := lookupKind(slug)
	if err != nil {
		return err
	}
	if kind.Singleton {
		return fmt.Errorf("%s cannot be deleted", kind.Slug)
	}

	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	tok, err := s.token("rm")
	if err != nil {
		return err
	}

	if err := s.api.Delete(cmd.Context(), tok, kind, id); err != nil {
		return s.check(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s %s\n", strings.ToLower(kind.Singular), id)
	return nil
}
