package dashboard

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sitecms/sitecms/internal/apiclient"
	"github.com/sitecms/sitecms/internal/auth"
	"github.com/sitecms/sitecms/internal/config"
	"github.com/sitecms/sitecms/internal/database"
	"github.com/sitecms/sitecms/internal/models"
	"github.com/sitecms/sitecms/internal/server"
	"github.com/sitecms/sitecms/internal/session"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "password123"
)

type nopEnqueuer struct{}

func (nopEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{ID: "task", Type: task.Type()}, nil
}

type testEnv struct {
	db        *gorm.DB
	api       *httptest.Server
	dashboard *Dashboard
	web       *httptest.Server
	client    *http.Client
}

func newTestAPI(t *testing.T) (*gorm.DB, *httptest.Server) {
	t.Helper()

	db, err := database.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

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
	return db, api
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	db, api := newTestAPI(t)
	env := &testEnv{db: db, api: api}

	cfg := config.DashboardConfig{PendingWait: time.Second, IdleTimeout: time.Minute}
	d, err := New(cfg, apiclient.New(api.URL), zerolog.Nop(), opts...)
	require.NoError(t, err)
	env.dashboard = d

	env.web = httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		env.web.Close()
		d.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return env
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.web.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.web.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, _ := e.post(t, "/admin/login", url.Values{"email": {adminEmail}, "password": {adminPassword}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/admin", resp.Header.Get("Location"))
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.get(t, "/admin/products?search=lamp")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin/login?returnUrl=%2Fadmin%2Fproducts%3Fsearch%3Dlamp", resp.Header.Get("Location"))

	resp, body := env.get(t, "/admin/login?returnUrl=%2Fadmin%2Fproducts")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `value="/admin/products"`)
	assert.NotEmpty(t, resp.Cookies())
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		form    url.Values
		status  int
		message string
	}{
		{
			name:    "empty fields",
			form:    url.Values{"email": {""}, "password": {""}},
			status:  http.StatusUnprocessableEntity,
			message: "Email and password are required.",
		},
		{
			name:    "wrong password",
			form:    url.Values{"email": {adminEmail}, "password": {"not-the-password"}},
			status:  http.StatusUnauthorized,
			message: "Invalid email or password.",
		},
		{
			name:    "unknown user",
			form:    url.Values{"email": {"nobody@example.com"}, "password": {"whatever1"}},
			status:  http.StatusUnauthorized,
			message: "Invalid email or password.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.post(t, "/admin/login", tt.form)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, body, tt.message)
		})
	}

	// Still signed out
	resp, _ := env.get(t, "/admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLogin_NetworkFailure(t *testing.T) {
	env := newTestEnv(t)
	env.api.Close()

	resp, body := env.post(t, "/admin/login", url.Values{"email": {adminEmail}, "password": {adminPassword}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "Could not reach the server. Please try again.")
	assert.Contains(t, body, adminEmail)
}

func TestLogin_ReturnTarget(t *testing.T) {
	tests := []struct {
		name      string
		returnURL string
		location  string
	}{
		{"local path", "/admin/products?page=2", "/admin/products?page=2"},
		{"empty", "", "/admin"},
		{"protocol relative", "//evil.example.com/admin", "/admin"},
		{"absolute", "https://evil.example.com/admin", "/admin"},
		{"login page", "/admin/login", "/admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			resp, _ := env.post(t, "/admin/login", url.Values{
				"email":     {adminEmail},
				"password":  {adminPassword},
				"returnUrl": {tt.returnURL},
			})
			assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
			assert.Equal(t, tt.location, resp.Header.Get("Location"))
		})
	}
}

func TestAuthenticatedViewerLeavesLoginPage(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, _ := env.get(t, "/admin/login")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))

	resp, body := env.get(t, "/admin")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Ada Admin")
	assert.Contains(t, body, "Recent activity")
	assert.Contains(t, body, "0 unread, 0 awaiting reply")
}

func TestProductLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, body := env.get(t, "/admin/products/new")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "New Product")

	// Missing required name re-renders the form with the typed values
	resp, body = env.post(t, "/admin/products", url.Values{"price": {"9.50"}, "category": {"Lamps"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "is required")
	assert.Contains(t, body, `value="Lamps"`)

	resp, _ = env.post(t, "/admin/products", url.Values{
		"name":      {"Desk Lamp"},
		"category":  {"Lamps"},
		"price":     {"9.50"},
		"is_active": {"on"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/admin/products/"), location)
	assert.True(t, strings.HasSuffix(location, "?notice=created"), location)
	itemPath := strings.TrimSuffix(location, "?notice=created")

	resp, body = env.get(t, location)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Desk Lamp")
	assert.Contains(t, body, "Created.")

	resp, body = env.get(t, "/admin/products?search=desk")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Desk Lamp")
	assert.Contains(t, body, "1 total")

	resp, _ = env.post(t, itemPath, url.Values{"name": {"Floor Lamp"}, "price": {"19"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = env.get(t, itemPath)
	assert.Contains(t, body, "Floor Lamp")

	resp, _ = env.post(t, itemPath+"/delete", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/products?notice=deleted", resp.Header.Get("Location"))

	resp, _ = env.get(t, itemPath)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownKindIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, _ := env.get(t, "/admin/widgets")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.get(t, "/admin/contacts/new")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompanySingleton(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, body := env.get(t, "/admin/company")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/admin/company"`)

	resp, _ = env.post(t, "/admin/company", url.Values{"name": {"Acme Ltd"}, "email": {"hello@acme.example"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = env.get(t, "/admin/company")
	assert.Contains(t, body, "Acme Ltd")
}

func TestContactActions(t *testing.T) {
	env := newTestEnv(t)
	contact := models.Contact{Name: "Jo", Email: "jo@example.com", Message: "Do you ship abroad?"}
	require.NoError(t, env.db.Create(&contact).Error)
	env.login(t)

	path := "/admin/contacts/" + contact.ID

	resp, body := env.get(t, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Mark as read")

	resp, _ = env.post(t, path+"/read", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body = env.post(t, path+"/reply", url.Values{"message": {"  "}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "A reply message is required.")

	resp, _ = env.post(t, path+"/reply", url.Values{"message": {"Yes, worldwide."}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	var stored models.Contact
	require.NoError(t, env.db.First(&stored, "id = ?", contact.ID).Error)
	assert.True(t, stored.IsRead)
	assert.True(t, stored.IsReplied)
	assert.Equal(t, "Yes, worldwide.", stored.ReplyMessage)

	resp, _ = env.post(t, "/admin/products/"+contact.ID+"/reply", url.Values{"message": {"x"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionExpiresWhenAPIRejectsToken(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", adminEmail).Update("is_active", false).Error)

	resp, _ := env.get(t, "/admin/products")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin/login?returnUrl=%2Fadmin%2Fproducts&expired=1", resp.Header.Get("Location"))

	resp, body := env.get(t, resp.Header.Get("Location"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Your session has expired. Please sign in again.")

	resp, _ = env.get(t, "/admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, _ := env.post(t, "/admin/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/login", resp.Header.Get("Location"))

	resp, _ = env.get(t, "/admin")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin/login?returnUrl=%2Fadmin", resp.Header.Get("Location"))

	var revoked int64
	require.NoError(t, env.db.Model(&models.RevokedToken{}).Count(&revoked).Error)
	assert.EqualValues(t, 1, revoked)
}

func TestProfileUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp, body := env.post(t, "/admin/profile", url.Values{"full_name": {"Ada L."}, "password": {"short"}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "at least 8 characters")

	resp, _ = env.post(t, "/admin/profile", url.Values{"full_name": {"Ada L."}, "username": {"ada"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	_, body = env.get(t, "/admin/profile?notice=saved")
	assert.Contains(t, body, `value="Ada L."`)
	assert.Contains(t, body, "Saved.")
}

func TestEventsNavigateWhenSessionEnds(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.web.URL+"/admin/events?path=%2Fadmin%2Fnews", nil)
	require.NoError(t, err)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Sign out from another tab of the same browser
	logout, _ := env.post(t, "/admin/logout", nil)
	require.Equal(t, http.StatusSeeOther, logout.StatusCode)

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Contains(t, lines, "event:navigate")
	assert.Contains(t, lines, "data:/admin/login?returnUrl=%2Fadmin%2Fnews")
}

// blockingBackend holds the initial identity check until released
type blockingBackend struct {
	release chan struct{}
	once    sync.Once
}

func (b *blockingBackend) Login(ctx context.Context, creds session.Credentials) (session.Grant, error) {
	return session.Grant{}, session.ErrInvalidCredentials
}

func (b *blockingBackend) Logout(ctx context.Context, token string) error { return nil }

func (b *blockingBackend) Me(ctx context.Context, token string) (session.UserIdentity, error) {
	select {
	case <-b.release:
		return session.UserIdentity{ID: "u1", Email: adminEmail, IsActive: true}, nil
	case <-ctx.Done():
		return session.UserIdentity{}, ctx.Err()
	}
}

func (b *blockingBackend) unblock() {
	b.once.Do(func() { close(b.release) })
}

func TestPendingSessionShowsLoadingPage(t *testing.T) {
	backend := &blockingBackend{release: make(chan struct{})}
	stores := func(string) session.TokenStore {
		s := session.NewMemoryTokenStore()
		_ = s.Save(context.Background(), session.StoredToken{Token: "stored", ExpiresAt: time.Now().Add(time.Hour)})
		return s
	}

	_, api := newTestAPI(t)
	cfg := config.DashboardConfig{PendingWait: 20 * time.Millisecond, IdleTimeout: time.Minute}
	d, err := New(cfg, apiclient.New(api.URL), zerolog.Nop(), WithBackend(backend), WithStores(stores))
	require.NoError(t, err)
	t.Cleanup(d.Close)
	t.Cleanup(backend.unblock)

	env := &testEnv{dashboard: d, web: httptest.NewServer(d.Handler())}
	t.Cleanup(env.web.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	// a returning browser whose session still has to be checked
	webURL, err := url.Parse(env.web.URL)
	require.NoError(t, err)
	jar.SetCookies(webURL, []*http.Cookie{{Name: sessionCookie, Value: uuid.NewString()}})

	resp, body := env.get(t, "/admin/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Checking your session")
	assert.Contains(t, body, `http-equiv="refresh"`)

	backend.unblock()

	require.Eventually(t, func() bool {
		resp, _ := env.get(t, "/admin/login")
		return resp.StatusCode == http.StatusFound && resp.Header.Get("Location") == "/admin"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRegistryEvictsIdleSessions(t *testing.T) {
	r := NewRegistry(&blockingBackend{release: make(chan struct{})}, MemoryStores(), 50*time.Millisecond, zerolog.Nop())
	defer r.Close()

	first := r.Get("a")
	assert.Same(t, first, r.Get("a"))
	assert.Equal(t, 1, r.Len())

	time.Sleep(80 * time.Millisecond)

	second := r.Get("a")
	assert.NotSame(t, first, second)

	_, err := first.Login(context.Background(), session.Credentials{Email: adminEmail, Password: adminPassword})
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestCookielessRequestsDoNotCreateSessions(t *testing.T) {
	env := newTestEnv(t)
	bare := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	for i := 0; i < 5; i++ {
		resp, err := bare.Get(env.web.URL + "/admin/products")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/admin/login?returnUrl=%2Fadmin%2Fproducts", resp.Header.Get("Location"))

		resp, err = bare.Get(env.web.URL + "/admin/login")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 0, env.dashboard.registry.Len())

	env.login(t)
	assert.Equal(t, 1, env.dashboard.registry.Len())
}

func TestRedisSessionsSurviveRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	stores := RedisStores(rdb, "sitecms:token:")

	env := newTestEnv(t, WithStores(stores))
	env.login(t)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "sitecms:token:"))

	// a second dashboard process sharing the same Redis
	cfg := config.DashboardConfig{PendingWait: time.Second, IdleTimeout: time.Minute}
	restarted, err := New(cfg, apiclient.New(env.api.URL), zerolog.Nop(), WithStores(stores))
	require.NoError(t, err)
	t.Cleanup(restarted.Close)
	web := httptest.NewServer(restarted.Handler())
	t.Cleanup(web.Close)

	// cookies are not scoped by port, so the jar sends the same sid
	resp, err := env.client.Get(web.URL + "/admin")
	require.NoError(t, err)
	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome, Ada Admin")

	resp, _ = env.post(t, "/admin/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Empty(t, mr.Keys())
}
