package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/cli/userconfig"
	"github.com/sitecms/sitecms/internal/guard"
	"github.com/sitecms/sitecms/internal/resource"
	"github.com/sitecms/sitecms/internal/session"
)

// DefaultAPIURL is used when no API URL is configured
const DefaultAPIURL = "http://localhost:8080"

// ErrNotLoggedIn is returned by commands that need a session when there is none
var ErrNotLoggedIn = errors.New("not logged in. Please run 'sitecms login' first")

// Options holds flags shared by all commands
type Options struct {
	APIURL string
}

// apiURL resolves the API URL: --api-url, then SITECMS_API_URL, then the
// URL saved by the last login
func (o *Options) apiURL() (string, error) {
	if o.APIURL != "" {
		return strings.TrimSuffix(o.APIURL, "/"), nil
	}
	if env := os.Getenv("SITECMS_API_URL"); env != "" {
		return strings.TrimSuffix(env, "/"), nil
	}

	cfg, err := userconfig.Load()
	if err != nil {
		return "", err
	}
	if cfg.APIURL != "" {
		return cfg.APIURL, nil
	}
	return DefaultAPIURL, nil
}

// newTokenStore returns where the session token of an API is kept
var newTokenStore = func(apiURL string) session.TokenStore {
	return session.NewKeyringTokenStore(apiURL)
}

// isInteractive reports whether stdin is a terminal
var isInteractive = func() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// cliSession is an initialized session against one API
type cliSession struct {
	apiURL   string
	api      *apiclient.Client
	provider *session.Provider
}

// openSession restores the stored session of the resolved API and waits for
// the initial identity check
func openSession(ctx context.Context, opts *Options) (*cliSession, error) {
	apiURL, err := opts.apiURL()
	if err != nil {
		return nil, err
	}

	api := apiclient.New(apiURL)
	p := session.NewProvider(api, newTokenStore(apiURL))
	p.Init(ctx)

	select {
	case <-p.Ready():
	case <-ctx.Done():
		p.Close()
		return nil, ctx.Err()
	}

	return &cliSession{apiURL: apiURL, api: api, provider: p}, nil
}

func (s *cliSession) Close() {
	s.provider.Close()
}

// token evaluates the signed-in policy for command and returns the access
// token when it allows the command to run
func (s *cliSession) token(command string) (string, error) {
	decision := guard.Evaluate(guard.NewPolicy(true), s.provider.Snapshot(), "/"+command)
	if decision.State != guard.Allowed {
		return "", ErrNotLoggedIn
	}

	tok, ok := s.provider.Token()
	if !ok {
		return "", ErrNotLoggedIn
	}
	return tok, nil
}

// check ends the session when the API rejected its token
func (s *cliSession) check(err error) error {
	if errors.Is(err, session.ErrSessionExpired) {
		s.provider.Expire()
		return fmt.Errorf("session expired. Please run 'sitecms login' again")
	}
	if errors.Is(err, apiclient.ErrNotFound) {
		return fmt.Errorf("not found")
	}
	return err
}

// lookupKind resolves a kind slug given on the command line
func lookupKind(slug string) (*resource.Kind, error) {
	kind, ok := resource.Lookup(slug)
	if !ok {
		return nil, fmt.Errorf("unknown content type %q (available: %s, %s)", slug, strings.Join(resource.Slugs(), ", "), resource.Company)
	}
	return kind, nil
}

// promptKind shows an interactive prompt for the user to select a content type
func promptKind() (*resource.Kind, error) {
	kinds := resource.Collections()

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Title | cyan }}",
		Inactive: "  {{ .Title }}",
		Selected: "{{ .Title | green }}",
	}

	prompt := promptui.Select{
		Label:     "Select a content type",
		Items:     kinds,
		Templates: templates,
		Size:      10,
	}

	index, _, err := prompt.Run()
	if err != nil {
		return nil, fmt.Errorf("selection cancelled: %w", err)
	}

	return kinds[index], nil
}
