// Package session owns a viewer's authenticated-session state.
//
// A Provider is the single writer of that state. It starts in a loading
// state, resolves it once through Init, and afterwards changes it only through
// Login, Logout, Expire and Refresh. Readers take Snapshots or Subscribe.
//
// Every Login and Logout is assigned a generation number when issued. A call
// may only apply its outcome while it is still the newest generation, so a
// slow request can never overwrite the result of a newer one.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// UserIdentity is the profile of the signed-in user
type UserIdentity struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username"`
	FullName  string     `json:"full_name"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// DisplayName returns the full name, falling back to the email
func (u UserIdentity) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// Credentials are what a viewer submits to sign in
type Credentials struct {
	Email    string
	Password string
}

// Grant is a successful login result
type Grant struct {
	Token     string
	ExpiresAt time.Time
	User      UserIdentity
}

// Backend performs the identity calls against the API
type Backend interface {
	Login(ctx context.Context, creds Credentials) (Grant, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (UserIdentity, error)
}

// Snapshot is a read-only view of the session state
type Snapshot struct {
	Loading       bool
	Authenticated bool
	User          *UserIdentity
	ExpiresAt     time.Time
}

// Option configures a Provider
type Option func(*Provider)

// WithLogger sets the provider's logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// WithClock overrides the time source used for token expiry
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithStoreTimeout bounds token store calls made outside a caller's context
func WithStoreTimeout(d time.Duration) Option {
	return func(p *Provider) { p.storeTimeout = d }
}

// Provider holds one viewer's session
type Provider struct {
	backend      Backend
	store        TokenStore
	log          zerolog.Logger
	now          func() time.Time
	storeTimeout time.Duration

	// rootCtx is canceled by Close and aborts in-flight backend calls
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// storeMu orders token store writes with the generation checks
	storeMu sync.Mutex

	mu       sync.Mutex
	state    Snapshot
	token    string
	gen      uint64
	closed   bool
	ready    chan struct{}
	isReady  bool
	timer    *time.Timer
	subs     map[int]chan Snapshot
	nextSub  int
	initOnce sync.Once
	wg       sync.WaitGroup
}

// NewProvider creates a provider in the loading state
func NewProvider(backend Backend, store TokenStore, opts ...Option) *Provider {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		backend:      backend,
		store:        store,
		log:          zerolog.Nop(),
		now:          time.Now,
		storeTimeout: 5 * time.Second,
		rootCtx:      ctx,
		rootCancel:   cancel,
		state:        Snapshot{Loading: true},
		ready:        make(chan struct{}),
		subs:         make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init starts the initial identity check in the background. Only the first
// call has any effect.
func (p *Provider) Init(ctx context.Context) {
	p.initOnce.Do(func() {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		gen := p.gen
		p.wg.Add(1)
		p.mu.Unlock()

		go func() {
			defer p.wg.Done()
			p.runInit(ctx, gen)
		}()
	})
}

func (p *Provider) runInit(ctx context.Context, gen uint64) {
	ctx, cancel := p.bind(ctx)
	defer cancel()

	stored, err := p.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoToken) {
			p.log.Warn().Err(err).Msg("Failed to load stored token")
		}
		p.resolveInit(gen, nil, StoredToken{}, false)
		return
	}

	if stored.Expired(p.now()) {
		p.log.Debug().Msg("Stored token already expired")
		p.resolveInit(gen, nil, StoredToken{}, true)
		return
	}

	user, err := p.backend.Me(ctx, stored.Token)
	if err != nil {
		err = classify(err)
		p.log.Debug().Err(err).Msg("Initial session check failed")
		p.resolveInit(gen, nil, StoredToken{}, errors.Is(err, ErrSessionExpired))
		return
	}

	p.resolveInit(gen, &user, stored, false)
}

func (p *Provider) resolveInit(gen uint64, user *UserIdentity, stored StoredToken, clearStore bool) {
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	p.mu.Lock()
	if p.closed || p.gen != gen {
		p.mu.Unlock()
		return
	}
	if user != nil {
		p.token = stored.Token
		p.scheduleExpiryLocked(gen, stored.ExpiresAt)
		p.setLocked(Snapshot{Authenticated: true, User: user, ExpiresAt: stored.ExpiresAt})
	} else {
		p.token = ""
		p.setLocked(Snapshot{})
	}
	p.mu.Unlock()

	if clearStore {
		if err := p.withStore(p.store.Clear); err != nil {
			p.log.Warn().Err(err).Msg("Failed to clear stale token")
		}
	}
}

// Login authenticates with the backend. On success the token is persisted and
// the session becomes authenticated. On failure the session is left
// unauthenticated and one of ErrInvalidCredentials or ErrNetworkFailure is
// returned. A login overtaken by a newer call returns ErrSuperseded and does
// not touch the state.
func (p *Provider) Login(ctx context.Context, creds Credentials) (UserIdentity, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return UserIdentity{}, ErrClosed
	}
	p.gen++
	gen := p.gen
	next := p.state
	next.Loading = true
	p.setLocked(next)
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	ctx, cancel := p.bind(ctx)
	defer cancel()

	grant, err := p.backend.Login(ctx, creds)
	err = classify(err)

	p.storeMu.Lock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.storeMu.Unlock()
		return UserIdentity{}, ErrClosed
	}
	if p.gen != gen {
		p.mu.Unlock()
		p.storeMu.Unlock()
		p.log.Debug().Uint64("generation", gen).Msg("Discarding superseded login result")
		if err == nil && grant.Token != "" {
			// nobody holds this token, so it must not stay valid on the server
			p.revoke(grant.Token)
		}
		return UserIdentity{}, ErrSuperseded
	}

	if err != nil {
		p.token = ""
		p.stopTimerLocked()
		p.setLocked(Snapshot{})
		p.mu.Unlock()

		if clearErr := p.withStore(p.store.Clear); clearErr != nil {
			p.log.Warn().Err(clearErr).Msg("Failed to clear token after failed login")
		}
		p.storeMu.Unlock()
		p.log.Info().Err(err).Str("email", creds.Email).Msg("Login failed")
		return UserIdentity{}, err
	}

	user := grant.User
	p.token = grant.Token
	p.scheduleExpiryLocked(gen, grant.ExpiresAt)
	p.setLocked(Snapshot{Authenticated: true, User: &user, ExpiresAt: grant.ExpiresAt})
	p.mu.Unlock()

	stored := StoredToken{Token: grant.Token, ExpiresAt: grant.ExpiresAt}
	if err := p.withStore(func(ctx context.Context) error { return p.store.Save(ctx, stored) }); err != nil {
		p.log.Warn().Err(err).Msg("Failed to persist token")
	}
	p.storeMu.Unlock()

	p.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("Logged in")
	return user, nil
}

// Logout clears the session immediately and then revokes the token with the
// backend. The local state is cleared even when the backend call fails; in
// that case the failure is returned.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.gen++
	token := p.token
	p.token = ""
	p.stopTimerLocked()
	p.setLocked(Snapshot{})
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	ctx, cancel := p.bind(ctx)
	defer cancel()

	p.storeMu.Lock()
	if err := p.withStore(p.store.Clear); err != nil {
		p.log.Warn().Err(err).Msg("Failed to clear stored token")
	}
	p.storeMu.Unlock()

	if token == "" {
		return nil
	}

	if err := classify(p.backend.Logout(ctx, token)); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil
		}
		p.log.Warn().Err(err).Msg("Backend logout failed, local session cleared")
		return err
	}

	p.log.Info().Msg("Logged out")
	return nil
}

// Expire ends the current session because the backend rejected its token.
// It is a no-op when no session is active.
func (p *Provider) Expire() {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()
	p.expire(gen)
}

// expire clears the session only if generation gen is still current
func (p *Provider) expire(gen uint64) {
	p.storeMu.Lock()
	defer p.storeMu.Unlock()

	p.mu.Lock()
	if p.closed || p.gen != gen || !p.state.Authenticated {
		p.mu.Unlock()
		return
	}
	p.gen++
	p.token = ""
	p.stopTimerLocked()
	p.setLocked(Snapshot{})
	p.mu.Unlock()

	p.log.Info().Msg("Session expired")

	if err := p.withStore(p.store.Clear); err != nil {
		p.log.Warn().Err(err).Msg("Failed to clear expired token")
	}
}

// withStore runs a token store operation detached from the caller's
// context, so a client that went away does not leave a stale token behind.
// Close still aborts it.
func (p *Provider) withStore(op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(p.rootCtx, p.storeTimeout)
	defer cancel()
	return op(ctx)
}

// revoke logs out a token the provider will never use
func (p *Provider) revoke(token string) {
	ctx, cancel := context.WithTimeout(p.rootCtx, p.storeTimeout)
	defer cancel()
	if err := classify(p.backend.Logout(ctx, token)); err != nil && !errors.Is(err, ErrSessionExpired) {
		p.log.Warn().Err(err).Msg("Failed to revoke superseded token")
	}
}

// Refresh reloads the user's identity from the backend. A rejected token
// expires the session.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	gen := p.gen
	token := p.token
	authenticated := p.state.Authenticated
	p.wg.Add(1)
	p.mu.Unlock()
	defer p.wg.Done()

	if !authenticated {
		return ErrSessionExpired
	}

	ctx, cancel := p.bind(ctx)
	defer cancel()

	user, err := p.backend.Me(ctx, token)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrSessionExpired) {
			p.expire(gen)
		}
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.gen != gen {
		return ErrSuperseded
	}
	next := p.state
	next.User = &user
	p.setLocked(next)
	return nil
}

// Snapshot returns the current state
func (p *Provider) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Token returns the access token of an authenticated session
func (p *Provider) Token() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Authenticated {
		return "", false
	}
	return p.token, true
}

// Ready is closed once the session has left its initial loading state, or
// the provider was closed.
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

// Subscribe returns a channel that receives the current state and then every
// change. Slow readers only see the latest state. The cancel func must be
// called when done.
func (p *Provider) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}

	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.state

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops the provider. Pending calls resolve without changing state and
// no further updates are published.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stopTimerLocked()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
	if !p.isReady {
		p.isReady = true
		close(p.ready)
	}
	p.mu.Unlock()

	p.rootCancel()
	p.wg.Wait()
}

// bind derives a context canceled by either ctx or Close
func (p *Provider) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.rootCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (p *Provider) setLocked(s Snapshot) {
	p.state = s
	if !s.Loading && !p.isReady {
		p.isReady = true
		close(p.ready)
	}
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

func (p *Provider) scheduleExpiryLocked(gen uint64, expiresAt time.Time) {
	p.stopTimerLocked()
	if expiresAt.IsZero() {
		return
	}
	d := expiresAt.Sub(p.now())
	if d < 0 {
		d = 0
	}
	p.timer = time.AfterFunc(d, func() { p.expire(gen) })
}

func (p *Provider) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
