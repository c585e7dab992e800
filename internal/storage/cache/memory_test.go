package cache

import (
	"context"
	"testing"
	"time"

	"civicledger/pkg/config"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if _, found, err := c.Get(ctx, "missing"); err != nil || found {
		t.Errorf("miss: found=%v err=%v", found, err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, found, err := c.Get(ctx, "k")
	if err != nil || !found || string(val) != "v" {
		t.Errorf("hit: %q found=%v err=%v", val, found, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("deleted key still present")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("expired key still present")
	}
}

func TestFactory(t *testing.T) {
	c, err := New(config.CacheConfig{Type: "memory"})
	if err != nil || c == nil {
		t.Fatalf("memory factory: %v", err)
	}
	if _, err := New(config.CacheConfig{Type: "etcd"}); err == nil {
		t.Error("unknown cache type should fail")
	}
}
