package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type loginReply struct {
	grant Grant
	err   error
}

type loginCall struct {
	creds Credentials
	reply chan loginReply
}

// fakeBackend hands every Login call to the test, which decides when and how
// it resolves.
type fakeBackend struct {
	calls chan *loginCall

	mu        sync.Mutex
	meFn      func(ctx context.Context, token string) (UserIdentity, error)
	meCount   int
	logoutErr error
	logouts   []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(chan *loginCall, 16)}
}

func (f *fakeBackend) Login(ctx context.Context, creds Credentials) (Grant, error) {
	call := &loginCall{creds: creds, reply: make(chan loginReply, 1)}
	f.calls <- call
	select {
	case r := <-call.reply:
		return r.grant, r.err
	case <-ctx.Done():
		return Grant{}, ctx.Err()
	}
}

func (f *fakeBackend) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, token)
	return f.logoutErr
}

func (f *fakeBackend) Me(ctx context.Context, token string) (UserIdentity, error) {
	f.mu.Lock()
	f.meCount++
	fn := f.meFn
	f.mu.Unlock()
	if fn == nil {
		return UserIdentity{}, ErrSessionExpired
	}
	return fn(ctx, token)
}

func (f *fakeBackend) nextCall(t *testing.T) *loginCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for login call")
		return nil
	}
}

func userFor(email string) UserIdentity {
	return UserIdentity{ID: "id-" + email, Email: email, FullName: "User " + email, Role: "editor", IsActive: true}
}

func grantFor(email string) Grant {
	return Grant{Token: "token-" + email, ExpiresAt: time.Now().Add(time.Hour), User: userFor(email)}
}

func waitReady(t *testing.T, p *Provider) {
	t.Helper()
	select {
	case <-p.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("provider never became ready")
	}
}

type loginResult struct {
	user UserIdentity
	err  error
}

// startLogin issues a login and waits until the backend has received it, so
// calls are issued in a known order.
func startLogin(t *testing.T, p *Provider, b *fakeBackend, email string) (*loginCall, <-chan loginResult) {
	t.Helper()
	done := make(chan loginResult, 1)
	go func() {
		u, err := p.Login(context.Background(), Credentials{Email: email, Password: "pw"})
		done <- loginResult{u, err}
	}()
	return b.nextCall(t), done
}

func TestProvider_InitWithoutToken(t *testing.T) {
	b := newFakeBackend()
	p := NewProvider(b, NewMemoryTokenStore())
	defer p.Close()

	assert.True(t, p.Snapshot().Loading)

	p.Init(context.Background())
	waitReady(t, p)

	snap := p.Snapshot()
	assert.False(t, snap.Loading)
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.User)
	assert.Equal(t, 0, b.meCount)
}

func TestProvider_InitRestoresSession(t *testing.T) {
	b := newFakeBackend()
	b.meFn = func(ctx context.Context, token string) (UserIdentity, error) {
		if token != "persisted" {
			return UserIdentity{}, ErrSessionExpired
		}
		return userFor("a@example.com"), nil
	}
	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(context.Background(), StoredToken{Token: "persisted", ExpiresAt: time.Now().Add(time.Hour)}))

	p := NewProvider(b, store)
	defer p.Close()
	p.Init(context.Background())
	p.Init(context.Background())
	waitReady(t, p)

	snap := p.Snapshot()
	assert.True(t, snap.Authenticated)
	require.NotNil(t, snap.User)
	assert.Equal(t, "a@example.com", snap.User.Email)

	token, ok := p.Token()
	assert.True(t, ok)
	assert.Equal(t, "persisted", token)

	b.mu.Lock()
	assert.Equal(t, 1, b.meCount, "initial check runs once")
	b.mu.Unlock()
}

func TestProvider_InitFailureIsUnauthenticated(t *testing.T) {
	tests := []struct {
		name      string
		meErr     error
		expiresAt time.Time
		keepToken bool
	}{
		{name: "rejected token", meErr: ErrSessionExpired, expiresAt: time.Now().Add(time.Hour), keepToken: false},
		{name: "network failure", meErr: errors.New("connection refused"), expiresAt: time.Now().Add(time.Hour), keepToken: true},
		{name: "stored token past expiry", expiresAt: time.Now().Add(-time.Minute), keepToken: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.meFn = func(ctx context.Context, token string) (UserIdentity, error) {
				if tt.meErr != nil {
					return UserIdentity{}, tt.meErr
				}
				return userFor("a@example.com"), nil
			}
			store := NewMemoryTokenStore()
			require.NoError(t, store.Save(context.Background(), StoredToken{Token: "t", ExpiresAt: tt.expiresAt}))

			p := NewProvider(b, store)
			defer p.Close()
			p.Init(context.Background())
			waitReady(t, p)

			assert.False(t, p.Snapshot().Authenticated)
			assert.False(t, p.Snapshot().Loading)

			_, err := store.Load(context.Background())
			if tt.keepToken {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNoToken)
			}
		})
	}
}

func TestProvider_LoginSuccess(t *testing.T) {
	b := newFakeBackend()
	store := NewMemoryTokenStore()
	p := NewProvider(b, store)
	defer p.Close()
	p.Init(context.Background())
	waitReady(t, p)

	call, done := startLogin(t, p, b, "a@example.com")
	assert.True(t, p.Snapshot().Loading, "loading while login is in flight")

	call.reply <- loginReply{grant: grantFor("a@example.com")}
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "a@example.com", res.user.Email)

	snap := p.Snapshot()
	assert.False(t, snap.Loading)
	assert.True(t, snap.Authenticated)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-a@example.com", stored.Token)
}

func TestProvider_LoginFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"invalid credentials", ErrInvalidCredentials, ErrInvalidCredentials},
		{"network failure", ErrNetworkFailure, ErrNetworkFailure},
		{"unclassified error", errors.New("boom"), ErrNetworkFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			p := NewProvider(b, NewMemoryTokenStore())
			defer p.Close()

			call, done := startLogin(t, p, b, "a@example.com")
			call.reply <- loginReply{err: tt.err}
			res := <-done

			assert.ErrorIs(t, res.err, tt.wantErr)
			snap := p.Snapshot()
			assert.False(t, snap.Authenticated)
			assert.False(t, snap.Loading)
			assert.Nil(t, snap.User)
		})
	}
}

func TestProvider_OverlappingLoginsLastIssuedWins(t *testing.T) {
	tests := []struct {
		name        string
		firstOK     bool
		secondOK    bool
		secondFirst bool
	}{
		{"first fails late, second succeeds", false, true, true},
		{"first succeeds late, second fails", true, false, true},
		{"in order, second fails", true, false, false},
		{"in order, second succeeds", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			store := NewMemoryTokenStore()
			p := NewProvider(b, store)
			defer p.Close()

			first, firstDone := startLogin(t, p, b, "first@example.com")
			second, secondDone := startLogin(t, p, b, "second@example.com")

			reply := func(c *loginCall, ok bool) {
				if ok {
					c.reply <- loginReply{grant: grantFor(c.creds.Email)}
				} else {
					c.reply <- loginReply{err: ErrInvalidCredentials}
				}
			}

			var firstRes, secondRes loginResult
			if tt.secondFirst {
				reply(second, tt.secondOK)
				secondRes = <-secondDone
				reply(first, tt.firstOK)
				firstRes = <-firstDone
			} else {
				reply(first, tt.firstOK)
				firstRes = <-firstDone
				assert.True(t, p.Snapshot().Loading, "still loading until the newest call resolves")
				reply(second, tt.secondOK)
				secondRes = <-secondDone
			}

			assert.ErrorIs(t, firstRes.err, ErrSuperseded)

			// a superseded grant is revoked; only the winner's token stays live
			b.mu.Lock()
			logouts := append([]string(nil), b.logouts...)
			b.mu.Unlock()
			if tt.firstOK {
				assert.Equal(t, []string{"token-first@example.com"}, logouts)
			} else {
				assert.Empty(t, logouts)
			}

			snap := p.Snapshot()
			assert.False(t, snap.Loading)
			assert.Equal(t, tt.secondOK, snap.Authenticated)
			if tt.secondOK {
				require.NoError(t, secondRes.err)
				assert.Equal(t, "second@example.com", snap.User.Email)
				stored, err := store.Load(context.Background())
				require.NoError(t, err)
				assert.Equal(t, "token-second@example.com", stored.Token)
			} else {
				assert.ErrorIs(t, secondRes.err, ErrInvalidCredentials)
				_, err := store.Load(context.Background())
				assert.ErrorIs(t, err, ErrNoToken)
			}
		})
	}
}

func TestProvider_LogoutClearsStateWhenBackendFails(t *testing.T) {
	b := newFakeBackend()
	b.logoutErr = errors.New("connection reset")
	store := NewMemoryTokenStore()
	p := NewProvider(b, store)
	defer p.Close()

	call, done := startLogin(t, p, b, "a@example.com")
	call.reply <- loginReply{grant: grantFor("a@example.com")}
	require.NoError(t, (<-done).err)

	err := p.Logout(context.Background())
	assert.ErrorIs(t, err, ErrNetworkFailure)

	snap := p.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.User)
	_, ok := p.Token()
	assert.False(t, ok)

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Equal(t, []string{"token-a@example.com"}, b.logouts)
}

func TestProvider_LogoutSupersedesPendingLogin(t *testing.T) {
	b := newFakeBackend()
	p := NewProvider(b, NewMemoryTokenStore())
	defer p.Close()

	call, done := startLogin(t, p, b, "a@example.com")
	require.NoError(t, p.Logout(context.Background()))

	call.reply <- loginReply{grant: grantFor("a@example.com")}
	assert.ErrorIs(t, (<-done).err, ErrSuperseded)
	assert.False(t, p.Snapshot().Authenticated)
	assert.False(t, p.Snapshot().Loading)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, []string{"token-a@example.com"}, b.logouts)
}

func TestProvider_FailedLoginClearsStoreAfterClientGoesAway(t *testing.T) {
	b := newFakeBackend()
	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(context.Background(), StoredToken{Token: "stale"}))
	p := NewProvider(b, &ctxCheckingStore{MemoryTokenStore: store})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Login(ctx, Credentials{Email: "a@example.com", Password: "pw"})
		done <- err
	}()
	b.nextCall(t)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestProvider_LogoutClearsStoreAfterClientGoesAway(t *testing.T) {
	b := newFakeBackend()
	store := NewMemoryTokenStore()
	p := NewProvider(b, &ctxCheckingStore{MemoryTokenStore: store})
	defer p.Close()

	call, done := startLogin(t, p, b, "a@example.com")
	call.reply <- loginReply{grant: grantFor("a@example.com")}
	require.NoError(t, (<-done).err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Logout(ctx)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

// ctxCheckingStore fails like a network store would once its context is done
type ctxCheckingStore struct {
	*MemoryTokenStore
}

func (s *ctxCheckingStore) Save(ctx context.Context, token StoredToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryTokenStore.Save(ctx, token)
}

func (s *ctxCheckingStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryTokenStore.Clear(ctx)
}

func TestProvider_LoginAfterLogoutWins(t *testing.T) {
	b := newFakeBackend()
	p := NewProvider(b, NewMemoryTokenStore())
	defer p.Close()

	require.NoError(t, p.Logout(context.Background()))
	call, done := startLogin(t, p, b, "a@example.com")
	call.reply <- loginReply{grant: grantFor("a@example.com")}
	require.NoError(t, (<-done).err)
	assert.True(t, p.Snapshot().Authenticated)
}

// Random interleavings of logins and logouts always leave the state the
// newest call produced.
func TestProvider_RandomInterleavings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		b := newFakeBackend()
		p := NewProvider(b, NewMemoryTokenStore())

		type pending struct {
			call *loginCall
			done <-chan loginResult
			ok   bool
		}
		var calls []pending
		lastWasLogin, lastOK := false, false

		n := 1 + rng.Intn(5)
		for i := 0; i < n; i++ {
			if rng.Intn(3) == 0 {
				_ = p.Logout(context.Background())
				lastWasLogin = false
				continue
			}
			c, d := startLogin(t, p, b, fmt.Sprintf("u%d@example.com", i))
			ok := rng.Intn(2) == 0
			calls = append(calls, pending{c, d, ok})
			lastWasLogin, lastOK = true, ok
		}

		rng.Shuffle(len(calls), func(i, j int) { calls[i], calls[j] = calls[j], calls[i] })
		for _, c := range calls {
			if c.ok {
				c.call.reply <- loginReply{grant: grantFor(c.call.creds.Email)}
			} else {
				c.call.reply <- loginReply{err: ErrInvalidCredentials}
			}
			<-c.done
		}

		snap := p.Snapshot()
		assert.False(t, snap.Loading, "round %d", round)
		assert.Equal(t, lastWasLogin && lastOK, snap.Authenticated, "round %d", round)
		p.Close()
	}
}

func TestProvider_CloseBeforeInitResolves(t *testing.T) {
	b := newFakeBackend()
	var entered atomic.Bool
	b.meFn = func(ctx context.Context, token string) (UserIdentity, error) {
		entered.Store(true)
		<-ctx.Done()
		return userFor("late@example.com"), nil
	}
	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(context.Background(), StoredToken{Token: "t"}))

	p := NewProvider(b, store)
	updates, cancel := p.Subscribe()
	defer cancel()
	<-updates // current state

	p.Init(context.Background())
	require.Eventually(t, entered.Load, time.Second, 5*time.Millisecond)

	p.Close()

	snap := p.Snapshot()
	assert.True(t, snap.Loading, "no state change after close")
	assert.False(t, snap.Authenticated)

	_, open := <-updates
	assert.False(t, open, "subscription closed without further updates")

	_, err := p.Login(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestProvider_ExpiresAtTokenExpiry(t *testing.T) {
	b := newFakeBackend()
	store := NewMemoryTokenStore()
	p := NewProvider(b, store)
	defer p.Close()

	call, done := startLogin(t, p, b, "a@example.com")
	g := grantFor("a@example.com")
	g.ExpiresAt = time.Now().Add(30 * time.Millisecond)
	call.reply <- loginReply{grant: g}
	require.NoError(t, (<-done).err)

	require.Eventually(t, func() bool { return !p.Snapshot().Authenticated }, 2*time.Second, 5*time.Millisecond)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestProvider_Expire(t *testing.T) {
	b := newFakeBackend()
	p := NewProvider(b, NewMemoryTokenStore())
	defer p.Close()

	p.Expire() // no session, no-op
	assert.True(t, p.Snapshot().Loading)

	call, done := startLogin(t, p, b, "a@example.com")
	call.reply <- loginReply{grant: grantFor("a@example.com")}
	require.NoError(t, (<-done).err)

	p.Expire()
	assert.False(t, p.Snapshot().Authenticated)
}

func TestProvider_Refresh(t *testing.T) {
	b := newFakeBackend()
	p := NewProvider(b, NewMemoryTokenStore())
	defer p.Close()

	assert.ErrorIs(t, p.Refresh(context.Background()), ErrSessionExpired)

	call, done := startLogin(t, p, b, "a@example.com")
	call.reply <- loginReply{grant: grantFor("a@example.com")}
	require.NoError(t, (<-done).err)

	b.mu.Lock()
	b.meFn = func(ctx context.Context, token string) (UserIdentity, error) {
		u := userFor("a@example.com")
		u.FullName = "Renamed"
		return u, nil
	}
	b.mu.Unlock()
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, "Renamed", p.Snapshot().User.FullName)

	b.mu.Lock()
	b.meFn = nil // rejects every token
	b.mu.Unlock()
	assert.ErrorIs(t, p.Refresh(context.Background()), ErrSessionExpired)
	assert.False(t, p.Snapshot().Authenticated)
}

func TestProvider_SubscribeSeesLatest(t *testing.T) {
	b := newFakeBackend()
	p := NewProvider(b, NewMemoryTokenStore())
	defer p.Close()

	updates, cancel := p.Subscribe()
	defer cancel()

	first := <-updates
	assert.True(t, first.Loading)

	p.Init(context.Background())
	waitReady(t, p)

	select {
	case s := <-updates:
		assert.False(t, s.Loading)
	case <-time.After(time.Second):
		t.Fatal("no update after init")
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Invalid email or password.", Message(ErrInvalidCredentials))
	assert.Contains(t, Message(fmt.Errorf("%w: dial tcp", ErrNetworkFailure)), "Could not reach")
	assert.Contains(t, Message(ErrSessionExpired), "expired")
	assert.Empty(t, Message(nil))
}
