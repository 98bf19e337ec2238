package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database Configuration
	Database DatabaseConfig

	// Redis Configuration
	Redis RedisConfig

	// Logging Configuration
	Logging LoggingConfig

	// Auth Configuration (token signing and lifetime)
	Auth AuthConfig

	// API server configuration
	Server ServerConfig

	// Admin dashboard configuration
	Dashboard DashboardConfig

	// Background scheduler configuration
	Scheduler SchedulerConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string // sqlite file path or postgres:// URL
	SeedFile string // optional YAML seed loaded into empty tables
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string // Redis address (host:port)
	Password string
	DB       int
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// AuthConfig holds token settings
type AuthConfig struct {
	JWTSecret string
	// ExpireAtMidnight issues tokens that expire at the next UTC midnight.
	// When false, TokenTTL is used instead.
	ExpireAtMidnight bool
	TokenTTL         time.Duration
}

// ServerConfig holds API server settings
type ServerConfig struct {
	Address        string
	AllowedOrigins []string
}

// DashboardConfig holds admin dashboard settings
type DashboardConfig struct {
	Address      string
	APIBaseURL   string
	LoginPath    string
	LandingPath  string
	CookieSecure bool
	// PendingWait bounds how long a request waits for the initial session check
	PendingWait time.Duration
	// IdleTimeout evicts browser sessions that have not been seen for this long
	IdleTimeout time.Duration
	// TokenStore selects where access tokens are kept: "redis" or "memory"
	TokenStore  string
	TokenPrefix string
}

// SchedulerConfig holds worker scheduler settings
type SchedulerConfig struct {
	Cron string // 5-field cron expression for content publishing checks
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	tokenTTL, err := getDuration("AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	pendingWait, err := getDuration("DASHBOARD_PENDING_WAIT", 2*time.Second)
	if err != nil {
		return nil, err
	}

	idleTimeout, err := getDuration("DASHBOARD_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getString("DATABASE_URL", "sitecms.sqlite"),
			SeedFile: os.Getenv("SEED_FILE"),
		},
		Redis: RedisConfig{
			Address:  getString("REDIS_ADDRESS", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logging: LoggingConfig{
			Level:  getString("LOG_LEVEL", "info"),
			Format: getString("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:        os.Getenv("JWT_SECRET"),
			ExpireAtMidnight: getBool("AUTH_EXPIRE_AT_MIDNIGHT", true),
			TokenTTL:         tokenTTL,
		},
		Server: ServerConfig{
			Address:        getString("SERVER_ADDRESS", ":8080"),
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:8081"}),
		},
		Dashboard: DashboardConfig{
			Address:      getString("DASHBOARD_ADDRESS", ":8081"),
			APIBaseURL:   getString("DASHBOARD_API_URL", "http://localhost:8080"),
			LoginPath:    getString("DASHBOARD_LOGIN_PATH", "/admin/login"),
			LandingPath:  getString("DASHBOARD_LANDING_PATH", "/admin"),
			CookieSecure: getBool("DASHBOARD_COOKIE_SECURE", false),
			PendingWait:  pendingWait,
			IdleTimeout:  idleTimeout,
			TokenStore:   getString("DASHBOARD_TOKEN_STORE", "redis"),
			TokenPrefix:  getString("DASHBOARD_TOKEN_PREFIX", "sitecms:token:"),
		},
		Scheduler: SchedulerConfig{
			Cron: getString("SCHEDULER_CRON", "* * * * *"),
		},
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
