package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Pair string  `json:"pair"`
	Z    float64 `json:"z"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "snap", payload{Pair: "A/B", Z: 1.5}, 0); err != nil {
		t.Fatal(err)
	}
	var got payload
	if err := mc.Get(ctx, "snap", &got); err != nil {
		t.Fatal(err)
	}
	if got.Pair != "A/B" || got.Z != 1.5 {
		t.Fatalf("got %+v", got)
	}

	var s string
	if err := mc.Set(ctx, "raw", "hello", 0); err != nil {
		t.Fatal(err)
	}
	if err := mc.Get(ctx, "raw", &s); err != nil || s != "hello" {
		t.Fatalf("string get: %q %v", s, err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Unix(1000, 0)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	_ = mc.Set(ctx, "k", 1, time.Second)
	now = now.Add(2 * time.Second)
	var v int
	if err := mc.Get(ctx, "k", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	now := time.Unix(1000, 0)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }
	ctx := context.Background()

	_ = mc.Set(ctx, "a", 1, 0)
	_ = mc.Set(ctx, "b", 2, 0)
	var v int
	_ = mc.Get(ctx, "a", &v)
	_ = mc.Set(ctx, "c", 3, 0)

	if err := mc.Get(ctx, "b", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &v); err != nil || v != 1 {
		t.Fatalf("expected a retained, got %d %v", v, err)
	}
	if mc.Len() != 2 {
		t.Fatalf("len %d", mc.Len())
	}
}

func TestMemoryCacheTryLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, _ := mc.TryLock(ctx, "adf", time.Minute)
	if !ok {
		t.Fatal("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "adf", time.Minute); ok {
		t.Fatal("second lock should fail")
	}
	_ = mc.Unlock(ctx, "adf")
	if ok, _ := mc.TryLock(ctx, "adf", time.Minute); !ok {
		t.Fatal("lock after unlock should succeed")
	}
}
