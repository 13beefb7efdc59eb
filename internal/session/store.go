package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates no persisted session exists for the given id.
var ErrNotFound = errors.New("session: not found")

// Store provides durable persistence for sessions so a browser reload does
// not force re-login. Records are keyed by the opaque session id carried in
// the session cookie.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a redis-backed session store. ttl bounds how long an
// untouched session survives.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{redis: redisClient, ttl: ttl}
}

func (s *Store) key(sid string) string {
	return fmt.Sprintf("gateway:session:%s", sid)
}

// Load retrieves a persisted session.
func (s *Store) Load(ctx context.Context, sid string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sid)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &sess, nil
}

// Save persists a session, refreshing its TTL.
func (s *Store) Save(ctx context.Context, sid string, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sid), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	return nil
}

// Delete removes a persisted session (logout, or refresh failure).
func (s *Store) Delete(ctx context.Context, sid string) error {
	if err := s.redis.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}
