package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSessionExpired = errors.New("session already expired")

// RedisRepository stores each terminal's session as JSON under "<prefix><terminalKey>".
// The key expires together with the session.
type RedisRepository struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRepository creates a Redis-based session repository. Prefix may be empty.
func NewRedisRepository(client redis.Cmdable, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisRepository{client: client, prefix: prefix}
}

func (r *RedisRepository) key(terminalKey string) string {
	return r.prefix + terminalKey
}

// Save refuses sessions without a future expiry so a stale token is never cached.
func (r *RedisRepository) Save(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(defaultSessionTTL)
	}
	ttl := s.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fmt.Errorf("save session %s: %w", s.TerminalKey, ErrSessionExpired)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(s.TerminalKey), b, ttl).Err()
}

func (r *RedisRepository) Get(ctx context.Context, terminalKey string) (*Session, error) {
	b, err := r.client.Get(ctx, r.key(terminalKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", terminalKey, err)
	}
	if s.Expired(time.Now().UTC()) {
		_ = r.client.Del(ctx, r.key(terminalKey)).Err()
		return nil, nil
	}
	return &s, nil
}

func (r *RedisRepository) Delete(ctx context.Context, terminalKey string) error {
	return r.client.Del(ctx, r.key(terminalKey)).Err()
}
