// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// components.go caches confirmed component lists in Valkey so list requests
// from many editor sessions skip the database. Every mutation invalidates
// the affected key.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sitekit/internal/models"
)

const (
	// componentKeyPrefix is the Valkey key prefix for cached lists.
	componentKeyPrefix = "components:"

	// DefaultComponentTTL is how long a cached list lives.
	DefaultComponentTTL = 5 * time.Minute
)

// ComponentCache stores component lists in Valkey. A nil *ComponentCache is
// valid and caches nothing, so the server runs without Valkey.
type ComponentCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewComponentCache creates a list cache backed by the given Valkey client.
func NewComponentCache(client *redis.Client, ttl time.Duration) *ComponentCache {
	if ttl == 0 {
		ttl = DefaultComponentTTL
	}
	return &ComponentCache{client: client, ttl: ttl}
}

// RedisKey returns the Valkey key for a list.
func RedisKey(key Key) string {
	return componentKeyPrefix + key.String()
}

// Get returns the cached list for key. Misses and errors both report false.
func (cc *ComponentCache) Get(ctx context.Context, key Key) ([]models.Component, bool) {
	if cc == nil {
		return nil, false
	}
	val, err := cc.client.Get(ctx, RedisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("component cache get error", "key", key.String(), "error", err)
		return nil, false
	}

	var list []models.Component
	if err := json.Unmarshal(val, &list); err != nil {
		slog.Warn("component cache decode error", "key", key.String(), "error", err)
		return nil, false
	}
	slog.Debug("component cache hit", "key", key.String())
	return list, true
}

// Set stores a list with the configured TTL.
func (cc *ComponentCache) Set(ctx context.Context, key Key, list []models.Component) {
	if cc == nil {
		return
	}
	if list == nil {
		list = []models.Component{}
	}
	payload, err := json.Marshal(list)
	if err != nil {
		slog.Warn("component cache encode error", "key", key.String(), "error", err)
		return
	}
	if err := cc.client.Set(ctx, RedisKey(key), payload, cc.ttl).Err(); err != nil {
		slog.Warn("component cache set error", "key", key.String(), "error", err)
	}
}

// Invalidate removes one cached list.
func (cc *ComponentCache) Invalidate(ctx context.Context, key Key) {
	if cc == nil {
		return
	}
	if err := cc.client.Del(ctx, RedisKey(key)).Err(); err != nil {
		slog.Warn("component cache invalidate error", "key", key.String(), "error", err)
		return
	}
	slog.Debug("component cache invalidated", "key", key.String())
}

// InvalidateAll removes every cached list by scanning for the prefix.
func (cc *ComponentCache) InvalidateAll(ctx context.Context) {
	if cc == nil {
		return
	}
	var cursor uint64
	var deleted int
	for {
		keys, next, err := cc.client.Scan(ctx, cursor, componentKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("component cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := cc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("component cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Info("component cache cleared", "deleted", deleted)
	}
}
