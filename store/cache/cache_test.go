package cache

import (
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestEviction(t *testing.T) {
	c := New[int, int](2, time.Minute)

	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1) // touch so 2 becomes the oldest
	c.Set(3, 3)

	if _, ok := c.Get(2); ok {
		t.Error("expected 2 to be evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("expected 1 to survive eviction")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New[string, string](10, time.Minute)

	c.SetWithTTL("k", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to be a miss")
	}
}

func TestRemoveAndPurge(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Error("expected removed key to be a miss")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len() after purge = %d, want 0", c.Len())
	}
}
