package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/remote"
)

func testEntry() *CacheEntry {
	return &CacheEntry{
		Request: prompt.Request{
			Task: prompt.Summarize,
			Text: "Lithium-ion batteries degrade over time.",
		},
		Response: remote.GenerateResponse{
			Text:    "Batteries wear out.",
			Latency: 1.5,
		},
	}
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(1 * time.Hour)
	defer cache.Close()
	ctx := context.Background()

	entry := testEntry()

	err := cache.Set(ctx, "test-key", entry)
	if err != nil {
		t.Fatalf("Failed to set cache entry: %v", err)
	}

	// Test Get
	retrieved, err := cache.Get(ctx, "test-key")
	if err != nil {
		t.Fatalf("Failed to get cache entry: %v", err)
	}

	if retrieved.Request.Text != entry.Request.Text {
		t.Errorf("Expected text '%s', got '%s'", entry.Request.Text, retrieved.Request.Text)
	}

	if retrieved.Response.Text != entry.Response.Text {
		t.Errorf("Expected response '%s', got '%s'", entry.Response.Text, retrieved.Response.Text)
	}

	if retrieved.AccessCount != 1 {
		t.Errorf("Expected access count 1, got %d", retrieved.AccessCount)
	}

	// Test Exists
	exists, err := cache.Exists(ctx, "test-key")
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}
	if !exists {
		t.Error("Expected key to exist")
	}

	// Test non-existent key
	exists, err = cache.Exists(ctx, "non-existent")
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}
	if exists {
		t.Error("Expected key to not exist")
	}

	// Test Get non-existent key
	_, err = cache.Get(ctx, "non-existent")
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}

	if err := cache.Delete(ctx, "test-key"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := cache.Get(ctx, "test-key"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestMemoryCacheExpiration(t *testing.T) {
	cache := NewMemoryCache(50 * time.Millisecond)
	defer cache.Close()
	ctx := context.Background()

	err := cache.Set(ctx, "test-key", testEntry())
	if err != nil {
		t.Fatalf("Failed to set cache entry: %v", err)
	}

	// Should exist immediately
	exists, err := cache.Exists(ctx, "test-key")
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}
	if !exists {
		t.Error("Expected key to exist immediately after setting")
	}

	// Wait for expiration
	time.Sleep(100 * time.Millisecond)

	exists, err = cache.Exists(ctx, "test-key")
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}
	if exists {
		t.Error("Expected key to not exist after expiration")
	}

	_, err = cache.Get(ctx, "test-key")
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after expiration, got %v", err)
	}
}

func TestMemoryCacheStats(t *testing.T) {
	cache := NewMemoryCache(1 * time.Hour)
	defer cache.Close()
	ctx := context.Background()

	cache.Set(ctx, "a", testEntry())
	cache.Set(ctx, "b", testEntry())
	cache.Get(ctx, "a")
	cache.Get(ctx, "missing")

	stats, err := cache.GetStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	if stats.TotalEntries != 2 {
		t.Errorf("Expected 2 entries, got %d", stats.TotalEntries)
	}
	if stats.HitCount != 1 || stats.MissCount != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", stats.HitCount, stats.MissCount)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %v", stats.HitRate)
	}
	if stats.MemoryUsage <= 0 {
		t.Error("Expected positive memory usage")
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	stats, _ = cache.GetStats(ctx)
	if stats.TotalEntries != 0 || stats.HitCount != 0 {
		t.Errorf("Expected empty stats after clear, got %+v", stats)
	}
}

func TestMemoryCacheCloseTwice(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	cache.Close()
	if err := cache.Close(); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(ctx, Options{Type: "memory", Duration: time.Hour})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	req := prompt.Request{Task: prompt.Rewrite, Tone: prompt.Friendly, Text: "Please advise."}

	if _, err := manager.GetResult(ctx, FewShot, req); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}

	if err := manager.SetResult(ctx, FewShot, req, remote.GenerateResponse{Text: "Let me know!"}); err != nil {
		t.Fatalf("Failed to set result: %v", err)
	}

	cached, err := manager.IsCached(ctx, FewShot, req)
	if err != nil || !cached {
		t.Errorf("Expected request to be cached, got %v (%v)", cached, err)
	}

	resp, err := manager.GetResult(ctx, FewShot, req)
	if err != nil {
		t.Fatalf("Failed to get result: %v", err)
	}
	if resp.Text != "Let me know!" {
		t.Errorf("Expected 'Let me know!', got '%s'", resp.Text)
	}

	stats, err := manager.GetStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Type != "memory" {
		t.Errorf("Expected type 'memory', got '%s'", stats.Type)
	}

	if err := manager.Forget(ctx, FewShot, req); err != nil {
		t.Fatalf("Failed to forget: %v", err)
	}
	if cached, _ := manager.IsCached(ctx, FewShot, req); cached {
		t.Error("Expected request to be forgotten")
	}
}

func TestManagerSeparatesFlavors(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(ctx, Options{Type: "memory", Duration: time.Hour})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	defer manager.Close()

	req := prompt.Request{Task: prompt.Summarize, Text: "Shared text."}
	if err := manager.SetResult(ctx, ServerTemplate, req, remote.GenerateResponse{Text: "server"}); err != nil {
		t.Fatalf("Failed to set result: %v", err)
	}
	if _, err := manager.GetResult(ctx, FewShot, req); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss for the other flavor, got %v", err)
	}
	resp, err := manager.GetResult(ctx, ServerTemplate, req)
	if err != nil || resp.Text != "server" {
		t.Errorf("Expected 'server', got %v (%v)", resp, err)
	}
}

func TestManagerNone(t *testing.T) {
	ctx := context.Background()
	manager, err := NewManager(ctx, Options{Type: "none"})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	req := prompt.Request{Task: prompt.Summarize, Text: "x"}
	manager.SetResult(ctx, FewShot, req, remote.GenerateResponse{Text: "y"})
	if _, err := manager.GetResult(ctx, FewShot, req); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss from none cache, got %v", err)
	}
}

func TestManagerUnsupported(t *testing.T) {
	if _, err := NewManager(context.Background(), Options{Type: "sqlite"}); err == nil {
		t.Error("Expected error for unsupported cache type")
	}
}

func TestGenerateKey(t *testing.T) {
	a := GenerateKey(ServerTemplate, prompt.Request{Task: prompt.Rewrite, Tone: prompt.Custom, CustomTone: "pirate", Text: "hello"})
	b := GenerateKey(ServerTemplate, prompt.Request{Task: prompt.Rewrite, Tone: prompt.Custom, CustomTone: "pirate", Text: "  hello\n"})
	c := GenerateKey(ServerTemplate, prompt.Request{Task: prompt.Rewrite, Tone: prompt.Custom, CustomTone: "poet", Text: "hello"})

	if a != b {
		t.Errorf("Expected surrounding whitespace to be ignored: %s != %s", a, b)
	}
	if a == c {
		t.Error("Expected custom tone to change the key")
	}
	if d := GenerateKey(FewShot, prompt.Request{Task: prompt.Rewrite, Tone: prompt.Custom, CustomTone: "pirate", Text: "hello"}); a == d {
		t.Error("Expected the prompt flavor to change the key")
	}
	if len(a) != len("generation:")+32 {
		t.Errorf("Unexpected key length: %s", a)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	cache, err := NewRedisCache(ctx, addr, "edgewriter-test/", time.Minute)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer cache.Close()
	defer cache.Clear(ctx)

	if err := cache.Set(ctx, "k", testEntry()); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}
	entry, err := cache.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if entry.Response.Text != "Batteries wear out." {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if _, err := cache.Get(ctx, "missing"); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}
