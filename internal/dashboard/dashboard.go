// Package dashboard serves the server-rendered admin interface. Every browser
// gets an opaque session cookie that maps to its own session.Provider; every
// route is gated by a guard.Policy before its handler runs.
package dashboard

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/config"
	"github.com/sitecms/sitecms/internal/guard"
	"github.com/sitecms/sitecms/internal/resource"
	"github.com/sitecms/sitecms/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "loading", "error", "overview", "list", "detail", "form", "profile"}

// Dashboard represents the admin web interface
type Dashboard struct {
	cfg      config.DashboardConfig
	api      *apiclient.Client
	backend  session.Backend
	stores   StoreFactory
	registry *Registry
	pages    map[string]*template.Template
	router   *gin.Engine
	log      zerolog.Logger
}

// Option configures a Dashboard
type Option func(*Dashboard)

// WithStores sets where browser sessions keep their tokens
func WithStores(f StoreFactory) Option {
	return func(d *Dashboard) { d.stores = f }
}

// WithBackend replaces the API client as the identity backend
func WithBackend(b session.Backend) Option {
	return func(d *Dashboard) { d.backend = b }
}

// New creates the dashboard
func New(cfg config.DashboardConfig, api *apiclient.Client, log zerolog.Logger, opts ...Option) (*Dashboard, error) {
	d := &Dashboard{
		cfg:     cfg,
		api:     api,
		backend: api,
		stores:  MemoryStores(),
		log:     log,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.cfg.LoginPath == "" {
		d.cfg.LoginPath = guard.DefaultLoginPath
	}
	if d.cfg.LandingPath == "" {
		d.cfg.LandingPath = guard.DefaultLandingPath
	}
	if d.cfg.PendingWait <= 0 {
		d.cfg.PendingWait = 2 * time.Second
	}
	if d.cfg.IdleTimeout <= 0 {
		d.cfg.IdleTimeout = 30 * time.Minute
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	d.pages = pages
	d.registry = NewRegistry(d.backend, d.stores, d.cfg.IdleTimeout, log)

	d.setupRouter()
	return d, nil
}

func parsePages() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"format": resource.Format,
		"input":  resource.InputValue,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (d *Dashboard) policy(requireAuth bool) guard.Policy {
	return guard.Policy{
		RequireAuth: requireAuth,
		LoginPath:   d.cfg.LoginPath,
		LandingPath: d.cfg.LandingPath,
	}
}

func (d *Dashboard) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(d.loggingMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": d.registry.Len()})
	})
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, d.cfg.LandingPath)
	})

	admin := router.Group("/admin", d.sessionMiddleware())

	public := admin.Group("", d.guardMiddleware(false))
	public.GET("/login", d.loginPage)
	public.POST("/login", d.login)

	admin.POST("/logout", d.logout)
	admin.GET("/events", d.events)

	protected := admin.Group("", d.guardMiddleware(true))
	protected.GET("", d.overview)
	protected.GET("/profile", d.profilePage)
	protected.POST("/profile", d.updateProfile)
	protected.GET("/:kind", d.listPage)
	protected.POST("/:kind", d.createOrSave)
	protected.GET("/:kind/new", d.newPage)
	protected.GET("/:kind/:id", d.detailPage)
	protected.GET("/:kind/:id/edit", d.editPage)
	protected.POST("/:kind/:id", d.update)
	protected.POST("/:kind/:id/delete", d.remove)
	protected.POST("/:kind/:id/read", d.markRead)
	protected.POST("/:kind/:id/reply", d.reply)

	d.router = router
}

// Handler returns the HTTP handler
func (d *Dashboard) Handler() http.Handler {
	return d.router
}

// Close closes every browser session
func (d *Dashboard) Close() {
	d.registry.Close()
}

// Start serves the dashboard until SIGINT or SIGTERM
func (d *Dashboard) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// No WriteTimeout: /admin/events streams for as long as a page is open
	srv := &http.Server{
		Addr:              d.cfg.Address,
		Handler:           d.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info().Str("address", srv.Addr).Str("api", d.api.BaseURL()).Msg("Starting dashboard")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-sigChan:
		d.log.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errCh:
		d.Close()
		return fmt.Errorf("HTTP server error: %w", err)
	}

	// Close sessions first so open event streams end
	d.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		d.log.Error().Err(err).Msg("Error shutting down dashboard")
		return err
	}

	d.log.Info().Msg("Dashboard shutdown complete")
	return nil
}

func (d *Dashboard) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/admin/events" {
			return
		}
		d.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	}
}
