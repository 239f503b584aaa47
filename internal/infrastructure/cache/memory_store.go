package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore is an in-process Store with LRU eviction and per-entry TTL,
// bounded by entry count and total bytes.
type MemoryStore struct {
	mu          sync.Mutex
	items       map[string]*entry
	lru         *list.List
	maxItems    int
	maxBytes    int64
	currentSize int64
	now         func() time.Time

	hits      int64
	misses    int64
	evictions int64

	logger *zap.Logger
}

type entry struct {
	key     string
	value   string
	size    int64
	expiry  time.Time
	element *list.Element
}

// Stats is a point-in-time view of the store counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Items     int
	Bytes     int64
	HitRate   float64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most maxItems entries and maxBytes
// of keys plus values.
func NewMemoryStore(maxItems int, maxBytes int64, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		items:    make(map[string]*entry),
		lru:      list.New(),
		maxItems: maxItems,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   logger,
	}
}

func (c *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		c.misses++
		return "", false, nil
	}
	c.lru.MoveToFront(e.element)
	c.hits++
	return e.value, true, nil
}

func (c *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

// Set stores value for ttl. A non-positive ttl deletes the key. Entries larger
// than the whole store are skipped.
func (c *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		c.remove(existing)
	}
	if ttl <= 0 {
		return nil
	}

	size := int64(len(key) + len(value))
	if size > c.maxBytes {
		c.logger.Warn("item too large for cache",
			zap.String("key", key),
			zap.Int64("size", size),
			zap.Int64("max_bytes", c.maxBytes))
		return nil
	}

	for (c.currentSize+size > c.maxBytes || len(c.items) >= c.maxItems) && c.lru.Len() > 0 {
		c.remove(c.lru.Back().Value.(*entry))
		c.evictions++
	}

	e := &entry{key: key, value: value, size: size, expiry: c.now().Add(ttl)}
	e.element = c.lru.PushFront(e)
	c.items[key] = e
	c.currentSize += size
	return nil
}

func (c *MemoryStore) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		c.remove(e)
	}
	return nil
}

// Stats returns the store counters.
func (c *MemoryStore) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Items:     len(c.items),
		Bytes:     c.currentSize,
		HitRate:   hitRate,
	}
}

// RunCleanup removes expired entries every interval until ctx is done.
func (c *MemoryStore) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryStore) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, e := range c.items {
		if now.After(e.expiry) {
			c.remove(e)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("cleaned up expired cache items", zap.Int("count", removed))
	}
	return removed
}

// live returns an unexpired entry, dropping it if expired. Lock must be held.
func (c *MemoryStore) live(key string) (*entry, bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiry) {
		c.remove(e)
		return nil, false
	}
	return e, true
}

// remove must be called with the lock held.
func (c *MemoryStore) remove(e *entry) {
	c.lru.Remove(e.element)
	delete(c.items, e.key)
	c.currentSize -= e.size
}
