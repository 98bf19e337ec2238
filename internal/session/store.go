package session

import (
	"context"
	"sync"
	"time"
)

// StoredToken is the persisted form of a session
type StoredToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now
func (t StoredToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// TokenStore persists the session token across restarts. Load returns
// ErrNoToken when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (StoredToken, error)
	Save(ctx context.Context, token StoredToken) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore keeps the token in process memory
type MemoryTokenStore struct {
	mu    sync.Mutex
	token *StoredToken
}

// NewMemoryTokenStore returns an empty in-memory store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (m *MemoryTokenStore) Load(ctx context.Context) (StoredToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return StoredToken{}, ErrNoToken
	}
	return *m.token, nil
}

func (m *MemoryTokenStore) Save(ctx context.Context, token StoredToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = &token
	return nil
}

func (m *MemoryTokenStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = nil
	return nil
}
