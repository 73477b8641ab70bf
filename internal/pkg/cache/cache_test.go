package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return rdb, s
}

func TestSummaryCache_GetSet(t *testing.T) {
	rdb, s := newRedis(t)
	c := NewSummaryCache(rdb, time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "long note"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "long note", "short"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "long note")
	if err != nil || !ok || got != "short" {
		t.Fatalf("expected hit, got %q ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := c.Get(ctx, "other note"); ok {
		t.Fatalf("different content must miss")
	}

	s.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "long note"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestSummaryCache_Disabled(t *testing.T) {
	rdb, s := newRedis(t)
	c := NewSummaryCache(rdb, 0)
	ctx := context.Background()

	if err := c.Set(ctx, "note", "summary"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Fatalf("disabled cache must not write, keys=%v", s.Keys())
	}

	var nilCache *SummaryCache
	if _, ok, err := nilCache.Get(ctx, "note"); ok || err != nil {
		t.Fatalf("nil cache must miss silently")
	}
}
