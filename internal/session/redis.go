package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
	"github.com/nikhilbhutani/medtranslate/internal/cache"
)

// RedisStore keeps sessions in redis with a sliding TTL so several API
// instances can share them.
type RedisStore struct {
	cache   *cache.Cache
	ttl     time.Duration
	lockTTL time.Duration
}

// NewRedisStore returns a store whose locks expire after lockTTL, so a
// crashed request cannot wedge a session.
func NewRedisStore(c *cache.Cache, ttl, lockTTL time.Duration) *RedisStore {
	return &RedisStore{cache: c, ttl: ttl, lockTTL: lockTTL}
}

func sessionKey(id string) string { return "session:" + id }
func lockKey(id string) string    { return "session:" + id + ":lock" }

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	return r.cache.Set(ctx, sessionKey(s.ID), s, r.ttl)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.cache.Get(ctx, sessionKey(id), &s)
	if errors.Is(err, cache.ErrMiss) {
		return nil, apperr.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &s, nil
}

// Save refreshes the TTL. A session deleted or expired since it was loaded
// stays gone.
func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now().UTC()
	ok, err := r.cache.Replace(ctx, sessionKey(s.ID), s, r.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrSessionNotFound
	}
	return nil
}

// Delete leaves the lock to its holder, which releases it or lets it expire.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, sessionKey(id))
}

func (r *RedisStore) Lock(ctx context.Context, id string) (func(), error) {
	token := uuid.NewString()
	ok, err := r.cache.Acquire(ctx, lockKey(id), token, r.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrSessionBusy
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// the request context may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.cache.Release(ctx, lockKey(id), token); err != nil {
				slog.Warn("release session lock", "session_id", id, "error", err)
			}
		})
	}, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.cache.Ping(ctx)
}
