package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/auth"
	"github.com/sitecms/sitecms/internal/cli/userconfig"
	"github.com/sitecms/sitecms/internal/config"
	"github.com/sitecms/sitecms/internal/database"
	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/server"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "password123"
)

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "task", Type: task.Type()}, nil
}

type cliEnv struct {
	db  *gorm.DB
	api *httptest.Server
}

// newCLIEnv starts an API backed by an in-memory database and isolates the
// keyring and user config of the test
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	keyring.MockInit()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SITECMS_API_URL", "")
	t.Setenv("SITECMS_EMAIL", "")
	t.Setenv("SITECMS_PASSWORD", "")
	t.Setenv("SITECMS_DASHBOARD_URL", "")

	interactive := isInteractive
	isInteractive = func() bool { return false }
	t.Cleanup(func() { isInteractive = interactive })

	db, err := database.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour

	srv, err := server.New(cfg, zerolog.Nop(), "test", server.WithDB(db), server.WithEnqueuer(nopEnqueuer{}))
	require.NoError(t, err)

	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	require.NoError(t, db.Create(&models.User{
		Email:        adminEmail,
		Username:     "admin",
		FullName:     "Ada Admin",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsActive:     true,
	}).Error)

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	return &cliEnv{db: db, api: api}
}

// run executes the command tree with args against the test API
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	opts := &Options{}
	root := &cobra.Command{Use: "sitecms", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().StringVar(&opts.APIURL, "api-url", "", "")
	root.AddCommand(
		NewLoginCmd(opts),
		NewLogoutCmd(opts),
		NewWhoamiCmd(opts),
		NewListCmd(opts),
		NewShowCmd(opts),
		NewDeleteCmd(opts),
		NewDashCmd(),
		NewConfigCmd(),
	)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api-url", e.api.URL}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func (e *cliEnv) login(t *testing.T) {
	t.Helper()
	_, err := e.run(t, "login", "--email", adminEmail, "--password", adminPassword)
	require.NoError(t, err)
}

func TestLogin_Success(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "login", "--email", adminEmail, "--password", adminPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Login successful!")
	assert.Contains(t, out, "Ada Admin (admin@example.com)")
	assert.Contains(t, out, "Role: admin")

	cfg, err := userconfig.Load()
	require.NoError(t, err)
	assert.Equal(t, env.api.URL, cfg.APIURL)
	assert.Equal(t, adminEmail, cfg.LastEmail)

	out, err = env.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ada Admin (admin@example.com)")
	assert.Contains(t, out, "Server:   "+env.api.URL)
}

func TestLogin_Failures(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "wrong password",
			args:    []string{"login", "--email", adminEmail, "--password", "nope"},
			wantErr: "login failed: Invalid email or password.",
		},
		{
			name:    "missing email",
			args:    []string{"login", "--password", adminPassword},
			wantErr: "email is required",
		},
		{
			name:    "missing password",
			args:    []string{"login", "--email", adminEmail},
			wantErr: "password is required in non-interactive mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := env.run(t, "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestLogin_CredentialsFromEnv(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("SITECMS_EMAIL", adminEmail)
	t.Setenv("SITECMS_PASSWORD", adminPassword)

	out, err := env.run(t, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Login successful!")
}

func TestCommandsRequireLogin(t *testing.T) {
	env := newCLIEnv(t)

	for _, args := range [][]string{
		{"whoami"},
		{"ls", "products"},
		{"show", "company"},
		{"rm", "products", "01ABC"},
	} {
		_, err := env.run(t, args...)
		assert.ErrorIs(t, err, ErrNotLoggedIn, "args %v", args)
	}
}

func TestListShowDelete(t *testing.T) {
	env := newCLIEnv(t)
	price := 19.5
	product := models.Product{Name: "Widget", Category: "Tools", Price: &price, IsActive: true}
	require.NoError(t, env.db.Create(&product).Error)
	env.login(t)

	out, err := env.run(t, "ls", "products")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, product.ID)
	assert.Contains(t, out, "Widget")
	assert.Contains(t, out, "Page 1 of 1 (1 total)")

	out, err = env.run(t, "ls", "products", "--search", "gadget")
	require.NoError(t, err)
	assert.Contains(t, out, "No products found.")

	out, err = env.run(t, "show", "products", product.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Product: Widget")
	assert.Contains(t, out, "Tools")

	out, err = env.run(t, "rm", "products", product.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Deleted product "+product.ID)

	_, err = env.run(t, "show", "products", product.ID)
	assert.EqualError(t, err, "not found")

	out, err = env.run(t, "ls", "products")
	require.NoError(t, err)
	assert.Contains(t, out, "No products found.")
}

func TestKindArguments(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "unknown kind", args: []string{"ls", "widgets"}, wantErr: `unknown content type "widgets"`},
		{name: "no kind without a terminal", args: []string{"ls"}, wantErr: "a content type is required"},
		{name: "list singleton", args: []string{"ls", "company"}, wantErr: "company has a single record"},
		{name: "show without id", args: []string{"show", "products"}, wantErr: "an id is required for products"},
		{name: "delete singleton", args: []string{"rm", "company", "1"}, wantErr: "company cannot be deleted"},
		{name: "bad page", args: []string{"ls", "products", "--page", "0"}, wantErr: "page must be 1 or greater"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestShowCompany(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, env.db.Create(&models.Company{Name: "Acme Ltd", Email: "hello@acme.example"}).Error)
	env.login(t)

	out, err := env.run(t, "show", "company")
	require.NoError(t, err)
	assert.Contains(t, out, "Acme Ltd")
	assert.Contains(t, out, "hello@acme.example")
}

func TestLogout(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	out, err := env.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Logged out of "+env.api.URL)

	_, err = env.run(t, "whoami")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	out, err = env.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in.")
}

func TestRejectedTokenClearsKeyring(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t)

	_, err := keyring.Get("sitecms-cli", "token-"+env.api.URL)
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", adminEmail).Update("is_active", false).Error)

	_, err = env.run(t, "ls", "products")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = keyring.Get("sitecms-cli", "token-"+env.api.URL)
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestDash(t *testing.T) {
	env := newCLIEnv(t)

	var opened []string
	open := openURL
	openURL = func(url string) error {
		opened = append(opened, url)
		return nil
	}
	t.Cleanup(func() { openURL = open })

	out, err := env.run(t, "dash")
	require.NoError(t, err)
	assert.Contains(t, out, "URL: http://localhost:8081/admin")

	_, err = env.run(t, "config", "set", "dashboard-url", "https://cms.example.com/")
	require.NoError(t, err)

	_, err = env.run(t, "dash")
	require.NoError(t, err)

	_, err = env.run(t, "dash", "--url", "http://127.0.0.1:9000")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://localhost:8081/admin",
		"https://cms.example.com/admin",
		"http://127.0.0.1:9000/admin",
	}, opened)
}

func TestConfig(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "api-url:       http://localhost:8080 (default)")

	out, err = env.run(t, "config", "set", "api-url", "https://api.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ api-url set to https://api.example.com")

	cfg, err := userconfig.Load()
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.APIURL)

	_, err = env.run(t, "config", "set", "theme", "dark")
	assert.ErrorContains(t, err, `unknown setting "theme"`)

	_, err = env.run(t, "config", "set", "api-url", "localhost")
	assert.ErrorContains(t, err, "invalid URL")
}

func TestAPIURLResolution(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SITECMS_API_URL", "")

	url, err := (&Options{}).apiURL()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, url)

	require.NoError(t, userconfig.Save(&userconfig.UserConfig{APIURL: "https://saved.example.com"}))
	url, err = (&Options{}).apiURL()
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example.com", url)

	t.Setenv("SITECMS_API_URL", "https://env.example.com/")
	url, err = (&Options{}).apiURL()
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", url)

	url, err = (&Options{APIURL: "https://flag.example.com"}).apiURL()
	require.NoError(t, err)
	assert.Equal(t, "https://flag.example.com", url)
}
