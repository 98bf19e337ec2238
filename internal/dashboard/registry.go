package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sitecms/sitecms/internal/session"
)

// StoreFactory returns the token store of one browser session
type StoreFactory func(sid string) session.TokenStore

// RedisStores keeps each browser's token in Redis under prefix+sid
func RedisStores(client redis.Cmdable, prefix string) StoreFactory {
	return func(sid string) session.TokenStore {
		return session.NewRedisTokenStore(client, prefix, sid)
	}
}

// MemoryStores keeps tokens in process memory. A session evicted for
// idleness loses its token.
func MemoryStores() StoreFactory {
	return func(string) session.TokenStore {
		return session.NewMemoryTokenStore()
	}
}

// Registry holds one session provider per browser session id. Providers
// idle for longer than the timeout are evicted and closed.
type Registry struct {
	mu      sync.Mutex
	cache   *cache.Cache
	backend session.Backend
	stores  StoreFactory
	log     zerolog.Logger
}

// NewRegistry creates a registry evicting providers after idle
func NewRegistry(backend session.Backend, stores StoreFactory, idle time.Duration, log zerolog.Logger) *Registry {
	cleanup := idle / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}

	r := &Registry{
		cache:   cache.New(idle, cleanup),
		backend: backend,
		stores:  stores,
		log:     log,
	}
	r.cache.OnEvicted(func(sid string, v interface{}) {
		if p, ok := v.(*session.Provider); ok {
			r.log.Debug().Str("sid", sid).Msg("Closing idle session")
			p.Close()
		}
	})
	return r
}

// Get returns the provider for sid, creating and initializing it on first
// use. Every call extends the idle deadline.
func (r *Registry) Get(sid string) *session.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(sid); ok {
		r.cache.SetDefault(sid, v)
		return v.(*session.Provider)
	}

	// An expired entry may still be held until the janitor runs. Evict it
	// now so its provider is closed rather than overwritten.
	r.cache.DeleteExpired()

	p := session.NewProvider(r.backend, r.stores(sid),
		session.WithLogger(r.log.With().Str("sid", sid).Logger()),
	)
	p.Init(context.Background())
	r.cache.SetDefault(sid, p)
	return p
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close closes every provider
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.cache.Items()
	r.cache.Flush()
	for _, item := range items {
		if p, ok := item.Object.(*session.Provider); ok {
			p.Close()
		}
	}
}
