package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd, opts)
		},
	}
}

func runLogout(cmd *cobra.Command, opts *Options) error {
	out := cmd.OutOrStdout()

	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.provider.Snapshot().Authenticated {
		fmt.Fprintln(out, "Not logged in.")
		return nil
	}

	// The local session is cleared even when the server cannot be reached
	if err := s.provider.Logout(cmd.Context()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: the server did not confirm the logout: %v\n", err)
	}

	fmt.Fprintf(out, "✓ Logged out of %s\n", s.apiURL)
	return nil
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd, opts)
		},
	}
}

func runWhoami(cmd *cobra.Command, opts *Options) error {
	s, err := openSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.token("whoami"); err != nil {
		return err
	}

	snap := s.provider.Snapshot()
	user := snap.User

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", user.DisplayName(), user.Email)
	fmt.Fprintf(out, "  Username: %s\n", user.Username)
	fmt.Fprintf(out, "  Role:     %s\n", user.Role)
	fmt.Fprintf(out, "  Server:   %s\n", s.apiURL)
	if !snap.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "  Expires:  %s\n", snap.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
