// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"sitekit/internal/models"
)

// testValkeyClient returns a Redis client for tests.
// Skips if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15, // Use DB 15 for tests.
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, componentKeyPrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestConnectValkey(t *testing.T) {
	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")

	client, err := ConnectValkey(host, port, os.Getenv("VALKEY_PASSWORD"))
	if err != nil {
		t.Skipf("skipping: Valkey not available: %v", err)
	}
	defer client.Close()

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if pong != "PONG" {
		t.Errorf("expected PONG, got %q", pong)
	}
}

func TestComponentCacheSetAndGet(t *testing.T) {
	client := testValkeyClient(t)
	cc := NewComponentCache(client, time.Minute)
	ctx := context.Background()
	key := ComponentsKey("cache-test", models.DocumentStatusPreview)

	if _, ok := cc.Get(ctx, key); ok {
		t.Error("expected cache miss")
	}

	want := []models.Component{
		{ComponentID: "a", ComponentType: models.ComponentTypeHero, Data: map[string]any{"title": "Hi"}, Order: 0},
		{ComponentID: "b", ComponentType: models.ComponentTypeFAQ, Order: 1},
	}
	cc.Set(ctx, key, want)

	got, ok := cc.Get(ctx, key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0].ComponentID != "a" || got[1].Order != 1 || got[0].Data["title"] != "Hi" {
		t.Errorf("unexpected list: %+v", got)
	}
}

func TestComponentCacheInvalidate(t *testing.T) {
	client := testValkeyClient(t)
	cc := NewComponentCache(client, time.Minute)
	ctx := context.Background()

	preview := ComponentsKey("invalidate-me", models.DocumentStatusPreview)
	published := ComponentsKey("invalidate-me", models.DocumentStatusPublished)
	cc.Set(ctx, preview, nil)
	cc.Set(ctx, published, nil)

	cc.Invalidate(ctx, preview)
	if _, ok := cc.Get(ctx, preview); ok {
		t.Error("expected miss after invalidation")
	}
	if _, ok := cc.Get(ctx, published); !ok {
		t.Error("published list should be untouched")
	}

	cc.InvalidateAll(ctx)
	if _, ok := cc.Get(ctx, published); ok {
		t.Error("expected miss after InvalidateAll")
	}
}

func TestNilComponentCacheIsNoop(t *testing.T) {
	var cc *ComponentCache
	ctx := context.Background()
	cc.Set(ctx, NavbarKey(), nil)
	cc.Invalidate(ctx, NavbarKey())
	cc.InvalidateAll(ctx)
	if _, ok := cc.Get(ctx, NavbarKey()); ok {
		t.Error("nil cache should always miss")
	}
}

func TestNewComponentCacheDefaultTTL(t *testing.T) {
	cc := NewComponentCache(nil, 0)
	if cc.ttl != DefaultComponentTTL {
		t.Errorf("expected DefaultComponentTTL (%v), got %v", DefaultComponentTTL, cc.ttl)
	}
}

func TestRedisKey(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{ComponentsKey("home", models.DocumentStatusPreview), "components:pageComponents/home/preview"},
		{NavbarKey(), "components:navbar"},
		{FooterKey(), "components:footer"},
	}
	for _, tt := range tests {
		if got := RedisKey(tt.key); got != tt.want {
			t.Errorf("RedisKey(%v) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
