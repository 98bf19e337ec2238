package commands

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sitecms/sitecms/internal/cli/userconfig"
)

// DefaultDashboardURL is used when no dashboard URL is configured
const DefaultDashboardURL = "http://localhost:8081"

// openURL is replaced in tests
var openURL = openBrowser

// NewDashCmd creates the dash command
func NewDashCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Open the admin dashboard in browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDash(cmd, url)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Dashboard base URL (or set SITECMS_DASHBOARD_URL)")

	return cmd
}

func runDash(cmd *cobra.Command, url string) error {
	base, err := dashboardURL(url)
	if err != nil {
		return err
	}
	dashURL := base + "/admin"

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Opening dashboard...")
	fmt.Fprintf(out, "URL: %s\n", dashURL)

	if err := openURL(dashURL); err != nil {
		return fmt.Errorf("failed to open browser: %w\nPlease visit: %s", err, dashURL)
	}

	return nil
}

func dashboardURL(flag string) (string, error) {
	if flag != "" {
		return strings.TrimSuffix(flag, "/"), nil
	}
	if env := os.Getenv("SITECMS_DASHBOARD_URL"); env != "" {
		return strings.TrimSuffix(env, "/"), nil
	}

	cfg, err := userconfig.Load()
	if err != nil {
		return "", err
	}
	if cfg.DashboardURL != "" {
		return cfg.DashboardURL, nil
	}
	return DefaultDashboardURL, nil
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
