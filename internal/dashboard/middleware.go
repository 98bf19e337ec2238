package dashboard

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/guard"
	"github.com/sitecms/sitecms/internal/resource"
	"github.com/sitecms/sitecms/internal/session"
)

const (
	sessionCookie = "sitecms_sid"
	sessionMaxAge = 30 * 24 * 60 * 60

	ctxSession = "dashboard_session"
	ctxUser    = "dashboard_user"
)

// browserSession is the request's view of one browser session. The provider
// is only created when a handler needs it, so clients that never send the
// cookie back do not fill the registry.
type browserSession struct {
	sid      string
	fresh    bool
	registry *Registry
	p        *session.Provider
}

func (s *browserSession) provider() *session.Provider {
	if s.p == nil {
		s.p = s.registry.Get(s.sid)
	}
	return s.p
}

// sessionMiddleware binds the request to the browser's session id, issuing a
// new one when the cookie is missing or malformed
func (d *Dashboard) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(sessionCookie)
		fresh := false
		if _, parseErr := uuid.Parse(sid); err != nil || parseErr != nil {
			sid = uuid.NewString()
			fresh = true
		}

		// Refresh the cookie on every request so active sessions keep it
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, sid, sessionMaxAge, "/", "", d.cfg.CookieSecure, true)

		c.Set(ctxSession, &browserSession{sid: sid, fresh: fresh, registry: d.registry})
		c.Next()
	}
}

// guardMiddleware evaluates the route policy. It waits a bounded time for the
// initial session check; a session still loading after that gets the loading
// page, which polls until the check resolves.
func (d *Dashboard) guardMiddleware(requireAuth bool) gin.HandlerFunc {
	policy := d.policy(requireAuth)

	return func(c *gin.Context) {
		snap := d.snapshot(c)
		decision := guard.Evaluate(policy, snap, d.currentPath(c))

		switch decision.State {
		case guard.Pending:
			c.Header("Retry-After", "1")
			d.render(c, http.StatusOK, "loading", layout{Title: "Loading"})
			c.Abort()
		case guard.Denied:
			d.redirect(c, decision.Redirect)
			c.Abort()
		default:
			if snap.User != nil {
				c.Set(ctxUser, snap.User)
			}
			c.Next()
		}
	}
}

// snapshot returns the session state for the guard. A session id issued by
// this request has no token anywhere, so it is signed out without a lookup.
func (d *Dashboard) snapshot(c *gin.Context) session.Snapshot {
	bs := c.MustGet(ctxSession).(*browserSession)
	if bs.fresh {
		return session.Snapshot{}
	}

	p := bs.provider()
	timer := time.NewTimer(d.cfg.PendingWait)
	select {
	case <-p.Ready():
	case <-timer.C:
	case <-c.Request.Context().Done():
	}
	timer.Stop()

	return p.Snapshot()
}

func provider(c *gin.Context) *session.Provider {
	return c.MustGet(ctxSession).(*browserSession).provider()
}

func currentUser(c *gin.Context) *session.UserIdentity {
	if v, ok := c.Get(ctxUser); ok {
		return v.(*session.UserIdentity)
	}
	return nil
}

// currentPath is the location a viewer returns to after signing in. Form
// posts cannot be replayed, so they return to the page that submitted them.
func (d *Dashboard) currentPath(c *gin.Context) string {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		return c.Request.URL.RequestURI()
	}
	if ref, err := url.Parse(c.Request.Referer()); err == nil && ref.Path != "" {
		return guard.ReturnTarget(d.policy(true), ref.RequestURI())
	}
	return d.cfg.LandingPath
}

// redirect answers GETs with 302 and form posts with 303 so the browser
// follows up with a GET
func (d *Dashboard) redirect(c *gin.Context, target string) {
	status := http.StatusFound
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	c.Redirect(status, target)
}

// layout is the data every page shares
type layout struct {
	Title  string
	Notice string
	User   *session.UserIdentity
	Kinds  []*resource.Kind
}

func (d *Dashboard) layout(c *gin.Context, title string) layout {
	return layout{
		Title:  title,
		Notice: notices[c.Query("notice")],
		User:   currentUser(c),
		Kinds:  resource.All(),
	}
}

var notices = map[string]string{
	"created": "Created.",
	"saved":   "Saved.",
	"deleted": "Deleted.",
	"read":    "Marked as read.",
	"replied": "Reply sent.",
}

func (d *Dashboard) render(c *gin.Context, status int, name string, data any) {
	t, ok := d.pages[name]
	if !ok {
		d.log.Error().Str("page", name).Msg("Unknown page")
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Render(status, render.HTML{Template: t, Name: "base", Data: data})
}

type errorView struct {
	layout
	Error string
}

func (d *Dashboard) renderError(c *gin.Context, status int, title, message string) {
	d.render(c, status, "error", errorView{layout: d.layout(c, title), Error: message})
}

// fail maps an API error onto a response. A rejected token ends the session
// and sends the viewer to sign in again.
func (d *Dashboard) fail(c *gin.Context, err error) {
	var apiErr *apiclient.APIError

	switch {
	case errors.Is(err, session.ErrSessionExpired):
		p := provider(c)
		p.Expire()
		decision := guard.Evaluate(d.policy(true), p.Snapshot(), d.currentPath(c))
		target := decision.Redirect
		if decision.State != guard.Denied {
			target = guard.LoginURL(d.policy(true), d.currentPath(c))
		}
		d.redirect(c, target+"&expired=1")
	case errors.Is(err, apiclient.ErrNotFound):
		d.renderError(c, http.StatusNotFound, "Not found", "The requested record does not exist.")
	case errors.As(err, &apiErr):
		d.renderError(c, apiErr.StatusCode, "Request failed", apiErr.Message)
	default:
		d.log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("API request failed")
		d.renderError(c, http.StatusBadGateway, "Request failed", session.Message(err))
	}
	c.Abort()
}

// token returns the viewer's access token, or ErrSessionExpired when the
// session ended after the guard ran
func token(c *gin.Context) (string, error) {
	tok, ok := provider(c).Token()
	if !ok {
		return "", session.ErrSessionExpired
	}
	return tok, nil
}
