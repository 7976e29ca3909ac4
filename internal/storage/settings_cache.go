package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gem-ledger/internal/models"
)

const settingsCacheKey = "settings:global"

// SettingsCache is a read-through cache for the settings singleton
type SettingsCache struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewSettingsCache creates a settings cache with the given TTL
func NewSettingsCache(cache *RedisCache, ttl time.Duration) *SettingsCache {
	return &SettingsCache{cache: cache, ttl: ttl}
}

// Get returns the cached settings, false on a miss
func (c *SettingsCache) Get(ctx context.Context) (*models.GlobalSettings, bool, error) {
	raw, err := c.cache.Get(ctx, settingsCacheKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read settings cache: %w", err)
	}

	var s models.GlobalSettings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// treat a corrupt entry as a miss; the next Set overwrites it
		return nil, false, nil
	}
	return &s, true, nil
}

// Set stores the settings
func (c *SettingsCache) Set(ctx context.Context, s *models.GlobalSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := c.cache.Set(ctx, settingsCacheKey, data, c.ttl); err != nil {
		return fmt.Errorf("failed to write settings cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached settings
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	if err := c.cache.Del(ctx, settingsCacheKey); err != nil {
		return fmt.Errorf("failed to invalidate settings cache: %w", err)
	}
	return nil
}
