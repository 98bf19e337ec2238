package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sitecms/sitecms/internal/cli/userconfig"
)

// configKeys maps the keys accepted by 'config set' to their fields
var configKeys = map[string]func(*userconfig.UserConfig) *string{
	"api-url":       func(c *userconfig.UserConfig) *string { return &c.APIURL },
	"dashboard-url": func(c *userconfig.UserConfig) *string { return &c.DashboardURL },
}

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the saved CLI settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <api-url|dashboard-url> <url>",
		Short: "Save a server URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(cmd, args[0], args[1])
		},
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command) error {
	cfg, err := userconfig.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "api-url:       %s\n", orDefault(cfg.APIURL, DefaultAPIURL))
	fmt.Fprintf(out, "dashboard-url: %s\n", orDefault(cfg.DashboardURL, DefaultDashboardURL))
	if cfg.LastEmail != "" {
		fmt.Fprintf(out, "last-email:    %s\n", cfg.LastEmail)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, key, value string) error {
	field, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (use api-url or dashboard-url)", key)
	}

	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q: expected http(s)://host[:port]", value)
	}
	value = strings.TrimSuffix(value, "/")

	if err := userconfig.Update(func(c *userconfig.UserConfig) { *field(c) = value }); err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s set to %s\n", key, value)
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def + " (default)"
	}
	return v
}
