package dashboard

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/guard"
	"github.com/sitecms/sitecms/internal/session"
)

// eventsKeepAlive is how often an idle event stream is pinged
const eventsKeepAlive = 15 * time.Second

type loginView struct {
	layout
	Error     string
	LoginPath string
	ReturnURL string
	Email     string
}

func (d *Dashboard) newLoginPage(c *gin.Context, returnURL string) loginView {
	return loginView{
		layout:    d.layout(c, "Sign in"),
		LoginPath: d.cfg.LoginPath,
		ReturnURL: returnURL,
	}
}

func (d *Dashboard) loginPage(c *gin.Context) {
	data := d.newLoginPage(c, c.Query(guard.DefaultReturnParam))
	if c.Query("expired") != "" {
		data.Error = session.Message(session.ErrSessionExpired)
	}
	d.render(c, http.StatusOK, "login", data)
}

func (d *Dashboard) login(c *gin.Context) {
	policy := d.policy(false)
	returnURL := c.PostForm(guard.DefaultReturnParam)

	data := d.newLoginPage(c, returnURL)
	data.Email = strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")

	if data.Email == "" || password == "" {
		data.Error = "Email and password are required."
		d.render(c, http.StatusUnprocessableEntity, "login", data)
		return
	}

	user, err := provider(c).Login(c.Request.Context(), session.Credentials{Email: data.Email, Password: password})
	switch {
	case err == nil:
		d.log.Info().Str("user_id", user.ID).Msg("Dashboard sign-in")
		c.Redirect(http.StatusSeeOther, guard.ReturnTarget(policy, returnURL))
	case errors.Is(err, session.ErrSuperseded):
		// A newer request owns the session now; the login screen shows its outcome
		c.Redirect(http.StatusSeeOther, guard.LoginURL(policy, guard.ReturnTarget(policy, returnURL)))
	case errors.Is(err, session.ErrInvalidCredentials):
		data.Error = session.Message(err)
		d.render(c, http.StatusUnauthorized, "login", data)
	default:
		d.log.Warn().Err(err).Msg("Dashboard sign-in failed")
		data.Error = session.Message(err)
		d.render(c, http.StatusServiceUnavailable, "login", data)
	}
}

func (d *Dashboard) logout(c *gin.Context) {
	if err := provider(c).Logout(c.Request.Context()); err != nil {
		d.log.Warn().Err(err).Msg("Backend logout failed")
	}
	c.Redirect(http.StatusSeeOther, d.cfg.LoginPath)
}

// events streams navigation instructions to an open page. When the session
// behind the page ends, the page is told once where to go.
func (d *Dashboard) events(c *gin.Context) {
	path := c.Query("path")
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		path = d.cfg.LandingPath
	}

	targets := make(chan string, 1)
	nav := guard.NavigatorFunc(func(target string) {
		select {
		case targets <- target:
		default:
		}
	})

	w := guard.Watch(c.Request.Context(), provider(c), d.policy(true), path, nav, d.log)
	defer w.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case target := <-targets:
			c.SSEvent("navigate", target)
			return false
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		case <-w.Done():
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type profileView struct {
	layout
	Error string
}

func (d *Dashboard) profilePage(c *gin.Context) {
	d.render(c, http.StatusOK, "profile", profileView{layout: d.layout(c, "Profile")})
}

func (d *Dashboard) updateProfile(c *gin.Context) {
	tok, err := token(c)
	if err != nil {
		d.fail(c, err)
		return
	}

	req := apiclient.UpdateProfileRequest{
		FullName: strings.TrimSpace(c.PostForm("full_name")),
		Username: strings.TrimSpace(c.PostForm("username")),
		Password: c.PostForm("password"),
	}
	if req.Password != "" && len(req.Password) < 8 {
		data := profileView{layout: d.layout(c, "Profile"), Error: "Password must be at least 8 characters."}
		d.render(c, http.StatusUnprocessableEntity, "profile", data)
		return
	}

	if _, err := d.api.UpdateMe(c.Request.Context(), tok, req); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			data := profileView{layout: d.layout(c, "Profile"), Error: apiErr.Message}
			d.render(c, apiErr.StatusCode, "profile", data)
			return
		}
		d.fail(c, err)
		return
	}

	if err := provider(c).Refresh(c.Request.Context()); err != nil && !errors.Is(err, session.ErrSuperseded) {
		d.fail(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/admin/profile?notice=saved")
}
