package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sitecms.sqlite", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "/admin/login", cfg.Dashboard.LoginPath)
	assert.Equal(t, "/admin", cfg.Dashboard.LandingPath)
	assert.True(t, cfg.Auth.ExpireAtMidnight)
	assert.Equal(t, 2*time.Second, cfg.Dashboard.PendingWait)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/cms")
	t.Setenv("AUTH_EXPIRE_AT_MIDNIGHT", "false")
	t.Setenv("AUTH_TOKEN_TTL", "90m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/cms", cfg.Database.URL)
	assert.False(t, cfg.Auth.ExpireAtMidnight)
	assert.Equal(t, 90*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DASHBOARD_PENDING_WAIT", "soon")

	_, err := Load()
	assert.Error(t, err)
}
