package cache

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pep299/edgewriter/internal/config"
	"github.com/pep299/edgewriter/internal/prompt"
	"github.com/pep299/edgewriter/internal/remote"
)

// Cache interface defines cache operations
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// CacheEntry represents a cached generation
type CacheEntry struct {
	Key         string                  `json:"key"`
	Request     prompt.Request          `json:"request"`
	Response    remote.GenerateResponse `json:"response"`
	CreatedAt   time.Time               `json:"created_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
	AccessedAt  time.Time               `json:"accessed_at"`
	AccessCount int                     `json:"access_count"`
}

// Stats represents cache statistics
type Stats struct {
	Type           string        `json:"type"`
	TotalEntries   int           `json:"total_entries"`
	HitCount       int64         `json:"hit_count"`
	MissCount      int64         `json:"miss_count"`
	HitRate        float64       `json:"hit_rate"`
	MemoryUsage    int64         `json:"memory_usage_bytes"`
	OldestEntry    time.Time     `json:"oldest_entry"`
	AverageAge     time.Duration `json:"average_age"`
	ExpiredEntries int           `json:"expired_entries"`
}

// Common cache errors
var (
	ErrCacheMiss = errors.New("cache miss")
)

// Options selects and configures a cache backend
type Options struct {
	Type      string
	Duration  time.Duration
	RedisAddr string
	Bucket    string
	Prefix    string
}

// OptionsFromConfig maps the application config onto cache options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Type:      cfg.CacheType,
		Duration:  time.Duration(cfg.CacheDuration) * time.Hour,
		RedisAddr: cfg.RedisAddr,
		Bucket:    cfg.GCSBucket,
		Prefix:    cfg.GCSPrefix,
	}
}

// Manager handles cache operations with convenience methods
type Manager struct {
	cache Cache
	kind  string
}

// NewManager creates a new cache manager
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	var cache Cache

	switch opts.Type {
	case config.CacheNone:
		cache = nopCache{}
	case "", config.CacheMemory:
		opts.Type = config.CacheMemory
		cache = NewMemoryCache(opts.Duration)
	case config.CacheRedis:
		var err error
		cache, err = NewRedisCache(ctx, opts.RedisAddr, opts.Prefix, opts.Duration)
		if err != nil {
			return nil, fmt.Errorf("creating redis cache: %w", err)
		}
	case config.CacheGCS:
		var err error
		cache, err = NewCloudStorageCache(ctx, opts.Bucket, opts.Prefix, opts.Duration)
		if err != nil {
			return nil, fmt.Errorf("creating cloud storage cache: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", opts.Type)
	}

	return &Manager{cache: cache, kind: opts.Type}, nil
}

// NewManagerWithCache wraps an existing cache
func NewManagerWithCache(kind string, cache Cache) *Manager {
	return &Manager{cache: cache, kind: kind}
}

// Type returns the backend name
func (m *Manager) Type() string {
	return m.kind
}

// GetResult retrieves a cached generation for a request
func (m *Manager) GetResult(ctx context.Context, flavor Flavor, req prompt.Request) (*remote.GenerateResponse, error) {
	entry, err := m.cache.Get(ctx, GenerateKey(flavor, req))
	if err != nil {
		return nil, err
	}
	return &entry.Response, nil
}

// SetResult caches a generation for a request
func (m *Manager) SetResult(ctx context.Context, flavor Flavor, req prompt.Request, resp remote.GenerateResponse) error {
	entry := &CacheEntry{
		Request:  req,
		Response: resp,
	}
	return m.cache.Set(ctx, GenerateKey(flavor, req), entry)
}

// IsCached checks if a request already has a cached result
func (m *Manager) IsCached(ctx context.Context, flavor Flavor, req prompt.Request) (bool, error) {
	return m.cache.Exists(ctx, GenerateKey(flavor, req))
}

// Forget drops the cached result for a request
func (m *Manager) Forget(ctx context.Context, flavor Flavor, req prompt.Request) error {
	return m.cache.Delete(ctx, GenerateKey(flavor, req))
}

// GetStats returns cache statistics
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	stats, err := m.cache.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Type = m.kind
	return stats, nil
}

// Clear clears all cached entries
func (m *Manager) Clear(ctx context.Context) error {
	return m.cache.Clear(ctx)
}

// Close releases the backend
func (m *Manager) Close() error {
	return m.cache.Close()
}

// Flavor names the prompt a cached result was generated from. The same
// request produces different prompts, and so different output, per flavor.
type Flavor string

const (
	// FewShot is the in-process prompt built by prompt.BuildRequest
	FewShot Flavor = "fewshot"
	// ServerTemplate is the chat-template prompt built by prompt.ServerPrompt
	ServerTemplate Flavor = "server"
)

// GenerateKey derives a cache key from the prompt flavor and the fields
// that determine the prompt
func GenerateKey(flavor Flavor, req prompt.Request) string {
	identifier := strings.Join([]string{
		string(flavor),
		string(req.Task),
		string(req.Tone),
		req.CustomTone,
		strings.TrimSpace(req.Text),
	}, "|")

	// Create MD5 hash for consistent key length
	hash := md5.Sum([]byte(identifier))
	return fmt.Sprintf("generation:%x", hash)
}

// nopCache never stores anything
type nopCache struct{}

func (nopCache) Get(context.Context, string) (*CacheEntry, error) { return nil, ErrCacheMiss }
func (nopCache) Set(context.Context, string, *CacheEntry) error   { return nil }
func (nopCache) Delete(context.Context, string) error             { return nil }
func (nopCache) Exists(context.Context, string) (bool, error)     { return false, nil }
func (nopCache) Clear(context.Context) error                      { return nil }
func (nopCache) GetStats(context.Context) (*Stats, error)         { return &Stats{}, nil }
func (nopCache) Close() error                                     { return nil }
