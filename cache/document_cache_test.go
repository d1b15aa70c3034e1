package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryDocumentCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDocumentCache(0)

	if _, ok := c.Get(ctx, "2023/Index.json"); ok {
		t.Fatal("empty cache returned a document")
	}
	c.Set(ctx, "2023/Index.json", []byte(`{"Year":2023}`), 0)
	data, ok := c.Get(ctx, "2023/Index.json")
	if !ok || string(data) != `{"Year":2023}` {
		t.Fatalf("Get = %q, %v", data, ok)
	}
	c.Set(ctx, "2023/Index.json", []byte(`{}`), 0)
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestMemoryDocumentCacheConcurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDocumentCache(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			c.Set(ctx, key, []byte(key), 0)
			c.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	if c.Len() != 16 {
		t.Errorf("Len = %d, want 16", c.Len())
	}
}

func TestMemoryDocumentCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryDocumentCache(time.Hour)

	c.Set(ctx, "2026/Index.json", []byte(`{"Meetings":[]}`), 30*time.Millisecond)
	c.Set(ctx, "2023/Index.json", []byte(`{"Year":2023}`), 0)
	if _, ok := c.Get(ctx, "2026/Index.json"); !ok {
		t.Fatal("fresh entry missing")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(ctx, "2026/Index.json"); ok {
		t.Error("expired entry still served")
	}
	if _, ok := c.Get(ctx, "2023/Index.json"); !ok {
		t.Error("entry with the default ttl expired early")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1 after expiry", c.Len())
	}
}
