// Package guard decides whether a viewer may see a route given their session.
//
// Evaluate is a pure state machine: PENDING while the session is loading,
// then ALLOWED or DENIED. A DENIED decision carries the single redirect
// target. Watcher re-runs Evaluate whenever the session or current path
// changes and performs the redirect once per denial.
package guard

import (
	"net/url"
	"strings"

	"github.com/sitecms/sitecms/internal/session"
)

// State of a guarded route
type State int

const (
	Pending State = iota
	Allowed
	Denied
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Allowed:
		return "ALLOWED"
	case Denied:
		return "DENIED"
	default:
		return "UNKNOWN"
	}
}

// Default paths
const (
	DefaultLoginPath   = "/admin/login"
	DefaultLandingPath = "/admin"
	DefaultReturnParam = "returnUrl"
)

// Policy describes what a guarded route requires
type Policy struct {
	// RequireAuth routes need a signed-in viewer. Routes without it (the
	// login screen) send signed-in viewers to LandingPath instead.
	RequireAuth bool
	LoginPath   string
	LandingPath string
	ReturnParam string
}

// NewPolicy returns a policy using the default paths
func NewPolicy(requireAuth bool) Policy {
	return Policy{RequireAuth: requireAuth}.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.LoginPath == "" {
		p.LoginPath = DefaultLoginPath
	}
	if p.LandingPath == "" {
		p.LandingPath = DefaultLandingPath
	}
	if p.ReturnParam == "" {
		p.ReturnParam = DefaultReturnParam
	}
	return p
}

// Decision is the outcome of evaluating a route
type Decision struct {
	State    State
	Redirect string // set only when State is Denied
}

// Evaluate decides the route state for the viewer at currentPath, which may
// carry a query string.
func Evaluate(p Policy, s session.Snapshot, currentPath string) Decision {
	p = p.withDefaults()

	if s.Loading {
		return Decision{State: Pending}
	}

	onLogin := pathOnly(currentPath) == p.LoginPath

	if p.RequireAuth && !s.Authenticated {
		returnURL := currentPath
		if onLogin || currentPath == "" {
			returnURL = p.LandingPath
		}
		return Decision{State: Denied, Redirect: LoginURL(p, returnURL)}
	}

	if !p.RequireAuth && s.Authenticated && onLogin {
		return Decision{State: Denied, Redirect: p.LandingPath}
	}

	return Decision{State: Allowed}
}

// LoginURL builds the login path carrying returnURL
func LoginURL(p Policy, returnURL string) string {
	p = p.withDefaults()
	q := url.Values{}
	q.Set(p.ReturnParam, returnURL)
	return p.LoginPath + "?" + q.Encode()
}

// ReturnTarget validates a post-login return URL. Anything that is not a
// local path, or that points back at the login screen, yields the landing path.
func ReturnTarget(p Policy, raw string) string {
	p = p.withDefaults()

	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return p.LandingPath
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return p.LandingPath
	}
	if u.Path == p.LoginPath {
		return p.LandingPath
	}
	return u.RequestURI()
}

func pathOnly(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
