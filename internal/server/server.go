// Package server
//
// @title sitecms API
// @version 1.0
// @description Content management API for the company website and admin dashboard
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/auth"
	"github.com/sitecms/sitecms/internal/config"
	"github.com/sitecms/sitecms/internal/database"
	"github.com/sitecms/sitecms/internal/models"
)

// TaskEnqueuer queues background tasks. *asynq.Client implements it.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	issuer    *auth.Issuer
	enqueuer  TaskEnqueuer
	metrics   *metrics
	closers   []func() error
	version   string
}

// Option customizes a Server
type Option func(*Server)

// WithDB uses an existing database connection instead of opening one
func WithDB(db *gorm.DB) Option {
	return func(s *Server) { s.db = db }
}

// WithEnqueuer replaces the Asynq client used to queue tasks
func WithEnqueuer(e TaskEnqueuer) Option {
	return func(s *Server) { s.enqueuer = e }
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string, opts ...Option) (*Server, error) {
	server := &Server{
		config:  cfg,
		logger:  zlog,
		version: version,
	}
	for _, opt := range opts {
		opt(server)
	}

	if server.db == nil {
		db, err := database.Open(cfg.Database.URL, zlog)
		if err != nil {
			return nil, err
		}
		server.db = db
		server.closers = append(server.closers, func() error { return database.Close(db) })
	}

	// Run database migrations
	if err := models.AutoMigrate(server.db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	secret, err := server.jwtSecret()
	if err != nil {
		return nil, err
	}
	server.issuer = auth.NewIssuer(secret, cfg.Auth.TokenTTL, cfg.Auth.ExpireAtMidnight)

	// Register custom validators on gin's binding engine
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return models.IsSlug(fl.Field().String())
		}); err != nil {
			return nil, fmt.Errorf("failed to register validator: %w", err)
		}
		server.validator = v
	}

	if server.enqueuer == nil {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		server.enqueuer = client
		server.closers = append(server.closers, client.Close)
	}

	server.metrics = newMetrics()
	server.setupRouter()

	return server, nil
}

// jwtSecret returns the configured secret, or the one generated on first start
func (s *Server) jwtSecret() (string, error) {
	if s.config.Auth.JWTSecret != "" {
		return s.config.Auth.JWTSecret, nil
	}

	var sys models.SystemConfig
	err := s.db.First(&sys).Error
	if err == nil {
		s.logger.Debug().Msg("Loaded JWT secret from database")
		return sys.JWTSecret, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("failed to load system config: %w", err)
	}

	// 64 hex characters = 32 bytes of randomness
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	sys.JWTSecret = hex.EncodeToString(secretBytes)
	if err := s.db.Create(&sys).Error; err != nil {
		return "", fmt.Errorf("failed to store JWT secret: %w", err)
	}
	s.logger.Info().Msg("Generated JWT secret")
	return sys.JWTSecret, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metrics.middleware())

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health and metrics (no auth required)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ready", s.readyCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	// Public auth endpoints (no auth required)
	s.router.POST("/api/setup", s.setupFirstAdmin)
	s.router.POST("/api/auth/login", s.login)
	s.router.GET("/api/auth/check", s.checkAuth)

	// Public website content
	s.registerPublicRoutes(s.router.Group("/api/public"))

	// Authenticated API routes (JWT required)
	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.db, s.issuer, s.logger))
	{
		api.POST("/auth/logout", s.logout)
		api.GET("/auth/me", s.getCurrentUser)
		api.PUT("/auth/me", s.updateCurrentUser)

		// User management (admin only)
		userRoutes := api.Group("/users")
		userRoutes.Use(AdminOnlyMiddleware(s.logger))
		{
			userRoutes.GET("", s.listUsers)
			userRoutes.POST("", s.createUser)
			userRoutes.DELETE("/:id", s.deleteUser)
		}

		// Dashboard overview
		api.GET("/stats", s.getStats)
		api.GET("/activity", s.listActivity)

		// Company profile (singleton)
		api.GET("/company", s.getCompany)
		api.PUT("/company", s.updateCompany)

		// Kind-specific routes go first so they win over /:id
		api.GET("/news/stats", s.getNewsStats)
		api.GET("/contacts/stats", s.getContactStats)
		api.POST("/contacts/:id/read", s.markContactRead)
		api.POST("/contacts/:id/reply", s.replyContact)

		s.registerContentRoutes(api)
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "sitecms-api",
		"version":   s.version,
	})
}

// @Router /ready [get]
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
func (s *Server) readyCheck(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// GetDB returns the database connection for use by workers
func (s *Server) GetDB() *gorm.DB {
	return s.db
}

// Close releases the database and queue connections opened by New
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing resource")
		}
	}
	s.closers = nil
}

// Start starts the HTTP server and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              s.config.Server.Address,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", srv.Addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("HTTP server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.Close()
	s.logger.Info().Msg("Server shutdown complete")
	return nil
}
