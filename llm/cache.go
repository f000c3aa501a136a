package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentforge/agentforge/core"
)

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	TokensSaved int64 `json:"tokens_saved"`
}

// Cache stores completed invocation results keyed by request fingerprint.
// Implementations must be safe for concurrent use and must never let a
// storage failure propagate into an invocation failure.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Put(ctx context.Context, key string, res *Result)
	Stats() CacheStats
}

// cacheKeyPayload pins the field order so the fingerprint is stable.
type cacheKeyPayload struct {
	Model       string                `json:"model"`
	Messages    []core.Message        `json:"messages"`
	Temperature float64               `json:"temperature"`
	Tools       []core.ToolDefinition `json:"tools,omitempty"`
}

// CacheKey fingerprints the semantically relevant parts of a request:
// model, messages, temperature and tool schemas.
func CacheKey(req Request) string {
	raw, err := json.Marshal(cacheKeyPayload{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		Tools:       req.Tools,
	})
	if err != nil {
		raw = []byte(req.Model)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// MemoryCacheOptions configure a MemoryCache.
type MemoryCacheOptions struct {
	// TTL is how long entries stay valid.
	TTL time.Duration
	// MaxEntries caps the cache; inserting beyond it evicts the oldest
	// tenth of entries.
	MaxEntries int
}

type cacheEntry struct {
	res       Result
	expiresAt time.Time
}

// MemoryCache is an in-process TTL cache with oldest-first bulk eviction.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry
	order      []string
	stats      CacheStats
}

// NewMemoryCache builds a cache. Defaults: 24h TTL, 10000 entries.
func NewMemoryCache(optFns ...func(o *MemoryCacheOptions)) *MemoryCache {
	opts := MemoryCacheOptions{TTL: 24 * time.Hour, MaxEntries: 10000}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MemoryCache{
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		entries:    make(map[string]cacheEntry),
	}
}

// Get returns the cached result if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	c.stats.TokensSaved += int64(e.res.TokensIn + e.res.TokensOut)
	res := e.res
	return &res, true
}

// Put stores a result, evicting the oldest tenth when the cache is full.
func (c *MemoryCache) Put(_ context.Context, key string, res *Result) {
	if res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		n := c.maxEntries / 10
		if n < 1 {
			n = 1
		}
		for i := 0; i < n && len(c.order) > 0; i++ {
			oldest := c.order[0]
			c.order = c.order[1:]
			if _, ok := c.entries[oldest]; ok {
				delete(c.entries, oldest)
				c.stats.Evictions++
			}
		}
	}
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	stored := *res
	stored.Cached = false
	c.entries[key] = cacheEntry{res: stored, expiresAt: time.Now().Add(c.ttl)}
}

// Stats returns a snapshot of the counters.
func (c *MemoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
