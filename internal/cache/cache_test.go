package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_ = m.Set(ctx, "k", []byte("v"), 300*time.Second)
	if v, ok, _ := m.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected hit, got %q %v", v, ok)
	}
	now = now.Add(300 * time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire at ttl")
	}
}

func TestInvalidatorDeletesScopedKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, k := range []string{AdminDashboardKey, AgentDashboardKey("a1"), AgentDashboardKey("a2"), AgentDashboardKey("a3")} {
		_ = m.Set(ctx, k, []byte("{}"), time.Minute)
	}
	inv := &Invalidator{Cache: m, Logger: zerolog.Nop()}
	inv.Invalidate(ctx, "a1", "", "a2", "a1")

	for _, k := range []string{AdminDashboardKey, AgentDashboardKey("a1"), AgentDashboardKey("a2")} {
		if _, ok, _ := m.Get(ctx, k); ok {
			t.Fatalf("expected %s invalidated", k)
		}
	}
	if _, ok, _ := m.Get(ctx, AgentDashboardKey("a3")); !ok {
		t.Fatalf("unrelated agent snapshot must survive")
	}
	if gen, _ := m.Incr(ctx, PerformanceGenKey); gen != 2 {
		t.Fatalf("expected generation bumped once before this call, got %d", gen)
	}
}

func TestRedisIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer client.Close()
	r := &Redis{Client: client}

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	if _, ok, err := r.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := r.Set(ctx, key, []byte("x"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := r.Get(ctx, key); !ok || string(v) != "x" {
		t.Fatalf("expected hit")
	}
	_ = r.Delete(ctx, key)
}
