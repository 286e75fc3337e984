package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/tokengate/core"
	"github.com/layer-3/tokengate/ports"
)

// RedisStore is the shared-storage Store implementation. Per-key TTLs make
// redis reclaim expired sessions and revocation entries on its own, so it
// does not implement the Sweeper port.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store on an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "tokengate:",
	}
}

var _ ports.Store = (*RedisStore)(nil)

// Refresh tokens are long; key sessions by their digest.
func (s *RedisStore) sessionKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return s.prefix + "session:" + hex.EncodeToString(sum[:])
}

func (s *RedisStore) jtiKey(jti string) string {
	return s.prefix + "jti:" + jti
}

func (s *RedisStore) revokedKey(jti string) string {
	return s.prefix + "revoked:" + jti
}

// SaveSession records a session with a TTL matching its refresh expiry.
func (s *RedisStore) SaveSession(ctx context.Context, refreshToken string, session core.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.RefreshExpiry)
	if ttl <= 0 {
		return nil
	}

	key := s.sessionKey(refreshToken)
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if err := s.client.Set(ctx, s.jtiKey(session.JTI), key, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// GetSession looks up a session by refresh token.
func (s *RedisStore) GetSession(ctx context.Context, refreshToken string) (core.Session, bool, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(refreshToken)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return core.Session{}, false, nil
		}
		return core.Session{}, false, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	var session core.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return core.Session{}, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, true, nil
}

// DeleteSession removes a session by refresh token.
func (s *RedisStore) DeleteSession(ctx context.Context, refreshToken string) error {
	payload, err := s.client.Get(ctx, s.sessionKey(refreshToken)).Bytes()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	keys := []string{s.sessionKey(refreshToken)}
	if err == nil {
		var session core.Session
		if jsonErr := json.Unmarshal(payload, &session); jsonErr == nil {
			keys = append(keys, s.jtiKey(session.JTI))
		}
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// DeleteSessionByJTI removes the session matching the jti, if any.
func (s *RedisStore) DeleteSessionByJTI(ctx context.Context, jti string) error {
	sessionKey, err := s.client.Get(ctx, s.jtiKey(jti)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if err := s.client.Del(ctx, sessionKey, s.jtiKey(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// Revoke adds a jti to the revocation set with the given TTL.
func (s *RedisStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.revokedKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// IsRevoked checks the revocation set.
func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return n > 0, nil
}
