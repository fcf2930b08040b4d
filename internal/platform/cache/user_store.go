// Package cache provides Redis caching decorators for store interfaces.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/simp-lee/usersvc/internal/domain"
)

const (
	defaultTTL       = 5 * time.Minute
	defaultNamespace = "users"
)

// UserStore decorates a domain.UserStore with a Redis read-through cache for
// single-user lookups. Cache failures are logged and never surfaced.
type UserStore struct {
	inner     domain.UserStore
	rdb       redis.Cmdable
	ttl       time.Duration
	namespace string
	logger    *slog.Logger
}

var _ domain.UserStore = (*UserStore)(nil)

// NewUserStore wraps inner. A nil rdb disables caching; a non-positive ttl
// defaults to 5 minutes.
func NewUserStore(inner domain.UserStore, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *UserStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: defaultNamespace,
		logger:    logger,
	}
}

// Create passes through; new users are cached on first read.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	return s.inner.Create(ctx, user)
}

// FindFirst serves the user from cache, falling back to the inner store and
// populating the cache on a hit. Misses are not cached.
func (s *UserStore) FindFirst(ctx context.Context, id string) (*domain.User, error) {
	if s.rdb == nil {
		return s.inner.FindFirst(ctx, id)
	}

	key := s.key(id)
	b, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var u domain.User
		if jsonErr := json.Unmarshal(b, &u); jsonErr == nil {
			return &u, nil
		}
		s.logger.WarnContext(ctx, "dropping corrupted cache entry", slog.String("key", key))
		s.del(ctx, key)
	case !errors.Is(err, redis.Nil):
		s.logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	user, err := s.inner.FindFirst(ctx, id)
	if err != nil || user == nil {
		return user, err
	}

	if b, err := json.Marshal(user); err == nil {
		if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
			s.logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return user, nil
}

// FindMany passes through.
func (s *UserStore) FindMany(ctx context.Context, skip, take int) ([]domain.User, error) {
	return s.inner.FindMany(ctx, skip, take)
}

// Count passes through.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	return s.inner.Count(ctx)
}

// Update writes through the inner store and invalidates the cached entry.
func (s *UserStore) Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error) {
	user, err := s.inner.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	if s.rdb != nil {
		s.del(ctx, s.key(id))
	}
	return user, nil
}

func (s *UserStore) del(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *UserStore) key(id string) string {
	return s.namespace + ":" + id
}
