package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitecms/sitecms/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the sitecms command tree
func NewRootCmd() *cobra.Command {
	opts := &commands.Options{}

	rootCmd := &cobra.Command{
		Use:   "sitecms",
		Short: "sitecms - manage your site content from the terminal",
		Long: `sitecms CLI - Sign in to a sitecms server and manage its content.

The session token is kept in the system keyring, one per server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "API base URL (or set SITECMS_API_URL)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sitecms version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewLoginCmd(opts))
	rootCmd.AddCommand(commands.NewLogoutCmd(opts))
	rootCmd.AddCommand(commands.NewWhoamiCmd(opts))
	rootCmd.AddCommand(commands.NewListCmd(opts))
	rootCmd.AddCommand(commands.NewShowCmd(opts))
	rootCmd.AddCommand(commands.NewDeleteCmd(opts))
	rootCmd.AddCommand(commands.NewDashCmd())
	rootCmd.AddCommand(commands.NewConfigCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
