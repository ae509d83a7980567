package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterBurstAndRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(3)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("a") {
			t.Fatalf("call %d should pass", i)
		}
	}
	if l.Allow("a") {
		t.Fatal("fourth call should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys must be independent")
	}

	now = now.Add(20 * time.Second)
	if !l.Allow("a") {
		t.Fatal("one token should have refilled after 20s")
	}
	if l.Allow("a") {
		t.Fatal("only one token should have refilled")
	}
}

func TestLimiterRetryAfter(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(3)
	l.now = func() time.Time { return now }
	if d := l.RetryAfter("a"); d != 0 {
		t.Fatalf("unknown key should not wait, got %v", d)
	}
	for l.Allow("a") {
	}
	if d := l.RetryAfter("a"); d < 19*time.Second || d > 21*time.Second {
		t.Fatalf("expected ~20s, got %v", d)
	}
	now = now.Add(15 * time.Second)
	if d := l.RetryAfter("a"); d < 4*time.Second || d > 6*time.Second {
		t.Fatalf("expected ~5s, got %v", d)
	}
}

func TestLimiterPrune(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(60)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(30 * time.Second)
	l.Allow("b")
	now = now.Add(45 * time.Second)
	if n := l.Prune(); n != 1 {
		t.Fatalf("pruned %d", n)
	}

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	if len(l.m) != 1 {
		t.Fatalf("idle keys should be pruned by Allow, have %d", len(l.m))
	}
}
