package cache

import (
	"testing"
	"time"
)

func TestTTLCache_GetSet(t *testing.T) {
	c := New[int](10)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.SetNowFunc(func() time.Time { return now })

	if _, ok := c.Get("k"); ok {
		t.Error("empty cache should miss")
	}
	c.Set("k", 42, time.Minute)
	if v, ok := c.Get("k"); !ok || v != 42 {
		t.Errorf("hit: got %d, %v", v, ok)
	}
}

func TestTTLCache_Expiry(t *testing.T) {
	c := New[string](10)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.SetNowFunc(func() time.Time { return now })

	c.Set("k", "v", time.Minute)
	now = now.Add(59 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("entry should survive inside its TTL")
	}
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("entry should expire after its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("expired read should drop the entry, len=%d", c.Len())
	}
}

func TestTTLCache_HardClearPastMax(t *testing.T) {
	c := New[int](3)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)
	// The fourth insert finds the cache full and clears everything first.
	c.Set("d", 4, time.Minute)
	if c.Len() != 1 {
		t.Errorf("after hard clear: len=%d, want 1", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("old entries should be gone after the clear")
	}
	if v, ok := c.Get("d"); !ok || v != 4 {
		t.Errorf("newest entry should survive: got %d, %v", v, ok)
	}
}

func TestTTLCache_Clear(t *testing.T) {
	c := New[int](10)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("after Clear: len=%d", c.Len())
	}
}
