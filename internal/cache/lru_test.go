package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRUEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %d %v", v, ok)
	}
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute).WithClock(func() time.Time { return now })
	c.Set("k", "v")
	c.Set("j", "w")
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("expected 1 cleaned, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Size())
	}
}

func TestSetIfAbsentAndUpdate(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	if _, stored := c.SetIfAbsent("op", 1); !stored {
		t.Fatalf("expected first store")
	}
	if v, stored := c.SetIfAbsent("op", 2); stored || v != 1 {
		t.Fatalf("expected existing 1, got %d stored=%v", v, stored)
	}
	if !c.Update("op", func(v int) int { return v + 10 }) {
		t.Fatalf("expected update")
	}
	if v, _ := c.Get("op"); v != 11 {
		t.Fatalf("expected 11, got %d", v)
	}
	if c.Update("missing", func(v int) int { return v }) {
		t.Fatalf("expected no update for missing key")
	}
}

func TestManagerRunStopsOnCancel(t *testing.T) {
	now := time.Now()
	c := NewLRUCache[int](10, time.Nanosecond).WithClock(func() time.Time { return now })
	c.Set("x", 1)
	now = now.Add(time.Second)

	m := NewManager(nil)
	m.Register(c)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("expected sweep to remove 1, got %d", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("manager did not stop")
	}
}
