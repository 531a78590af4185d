package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/application/query"
)

// ProfileCache stores computed profile views. It implements
// query.ProfileCache and command.ProfileCacheInvalidator.
type ProfileCache struct {
	cache *Cache
	ttl   time.Duration
}

var (
	_ query.ProfileCache              = (*ProfileCache)(nil)
	_ command.ProfileCacheInvalidator = (*ProfileCache)(nil)
)

// NewProfileCache creates a profile cache. A non-positive ttl uses
// TTLProfileCache.
func NewProfileCache(cache *Cache, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = TTLProfileCache
	}
	return &ProfileCache{cache: cache, ttl: ttl}
}

// profileKey namespaces a query cache key. Query keys start with "profile:".
func profileKey(key string) string {
	return PrefixApp + key
}

// studentPattern matches every window combination of one student.
func studentPattern(studentID string) string {
	return PrefixProfile + studentID + ":*"
}

// GetProfile returns the cached view or query.ErrCacheMiss.
func (p *ProfileCache) GetProfile(ctx context.Context, key string) ([]byte, error) {
	data, err := p.cache.GetBytes(ctx, profileKey(key))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, query.ErrCacheMiss
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return data, nil
}

// SetProfile stores a view with the configured TTL.
func (p *ProfileCache) SetProfile(ctx context.Context, key string, data []byte) error {
	if err := p.cache.SetBytes(ctx, profileKey(key), data, p.ttl); err != nil {
		return fmt.Errorf("set profile: %w", err)
	}
	return nil
}

// InvalidateProfile drops every cached view of the student.
func (p *ProfileCache) InvalidateProfile(ctx context.Context, studentID string) error {
	if studentID == "" {
		return ErrCacheKeyEmpty
	}
	if _, err := p.cache.DeleteByPattern(ctx, studentPattern(studentID)); err != nil {
		return fmt.Errorf("invalidate profile: %w", err)
	}
	return nil
}
