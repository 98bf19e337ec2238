package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenStore keeps one browser session's token in Redis under
// <prefix><sid>, expiring with the token.
type RedisTokenStore struct {
	client redis.Cmdable
	key    string
	now    func() time.Time
}

// NewRedisTokenStore creates a store for the browser session sid
func NewRedisTokenStore(client redis.Cmdable, prefix, sid string) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		key:    prefix + sid,
		now:    time.Now,
	}
}

// Key returns the Redis key the store writes to
func (s *RedisTokenStore) Key() string {
	return s.key
}

func (s *RedisTokenStore) Load(ctx context.Context) (StoredToken, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return StoredToken{}, ErrNoToken
		}
		return StoredToken{}, fmt.Errorf("failed to load token: %w", err)
	}

	var token StoredToken
	if err := json.Unmarshal(data, &token); err != nil {
		return StoredToken{}, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, token StoredToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	var ttl time.Duration
	if !token.ExpiresAt.IsZero() {
		ttl = token.ExpiresAt.Sub(s.now())
		if ttl < time.Second {
			ttl = time.Second
		}
	}

	if err := s.client.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
