package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sitecms/sitecms/internal/cli/userconfig"
	"github.com/sitecms/sitecms/internal/session"
)

// NewLoginCmd creates the login command
func NewLoginCmd(opts *Options) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with a sitecms server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, opts, email, password)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address or username (or set SITECMS_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set SITECMS_PASSWORD, will prompt if not provided)")

	return cmd
}

func runLogin(cmd *cobra.Command, opts *Options, email, password string) error {
	out := cmd.OutOrStdout()

	// Check for environment variables (useful for CI/CD)
	if email == "" {
		email = os.Getenv("SITECMS_EMAIL")
	}
	if password == "" {
		password = os.Getenv("SITECMS_PASSWORD")
	}

	cfg, err := userconfig.Load()
	if err != nil {
		return err
	}

	if email == "" {
		if !isInteractive() {
			return fmt.Errorf("email is required (use --email flag or SITECMS_EMAIL env var)")
		}
		prompt := promptui.Prompt{Label: "Email", Default: cfg.LastEmail}
		email, err = prompt.Run()
		if err != nil {
			return fmt.Errorf("login cancelled: %w", err)
		}
	}
	email = strings.TrimSpace(email)

	// Prompt for password if not provided via flag or env var
	if password == "" {
		if !isInteractive() {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or SITECMS_PASSWORD env var)")
		}
		password, err = readPassword(out)
		if err != nil {
			return err
		}
	}

	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(out, "Logging in to %s...\n", s.apiURL)

	user, err := s.provider.Login(cmd.Context(), session.Credentials{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %s", session.Message(err))
	}

	if err := userconfig.Update(func(c *userconfig.UserConfig) {
		c.APIURL = s.apiURL
		c.LastEmail = email
	}); err != nil {
		// The session is stored; only the defaults for next time are lost
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to save user config: %v\n", err)
	}

	fmt.Fprintln(out, "✓ Login successful!")
	fmt.Fprintf(out, "  User: %s (%s)\n", user.DisplayName(), user.Email)
	fmt.Fprintf(out, "  Role: %s\n", user.Role)
	if exp := s.provider.Snapshot().ExpiresAt; !exp.IsZero() {
		fmt.Fprintf(out, "  Session expires: %s\n", exp.Local().Format("2006-01-02 15:04"))
	}

	return nil
}

func readPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(out) // New line after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(bytePassword), nil
}
