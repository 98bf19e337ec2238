package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "sitecms-cli"

// KeyringTokenStore persists the token in the OS keychain, one entry per API server
type KeyringTokenStore struct {
	key string
}

// NewKeyringTokenStore creates a store for the API at baseURL
func NewKeyringTokenStore(baseURL string) *KeyringTokenStore {
	return &KeyringTokenStore{key: fmt.Sprintf("token-%s", baseURL)}
}

func (k *KeyringTokenStore) Load(ctx context.Context) (StoredToken, error) {
	secret, err := keyring.Get(keyringService, k.key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return StoredToken{}, ErrNoToken
		}
		return StoredToken{}, fmt.Errorf("failed to load token: %w", err)
	}

	var token StoredToken
	if err := json.Unmarshal([]byte(secret), &token); err != nil {
		return StoredToken{}, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

func (k *KeyringTokenStore) Save(ctx context.Context, token StoredToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := keyring.Set(keyringService, k.key, string(data)); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (k *KeyringTokenStore) Clear(ctx context.Context) error {
	if err := keyring.Delete(keyringService, k.key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
