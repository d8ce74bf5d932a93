// Package memory is an in-process TTL cache for Tavily responses.
// *Cache satisfies tavily.Cache.
package memory

import (
	"context"
	"sync"
	"time"
)

const defaultCleanupInterval = 5 * time.Minute

type item struct {
	value     interface{}
	expiresAt time.Time
}

func (it item) expired(now time.Time) bool {
	return now.After(it.expiresAt)
}

// Cache - in-memory кеш с TTL и ограничением по размеру
type Cache struct {
	mu         sync.RWMutex
	items      map[string]item
	maxEntries int
	interval   time.Duration
	stopChan   chan struct{}
	stopped    bool
}

type Option func(*Cache)

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxEntries caps the number of stored entries. Zero means no cap.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func New(opts ...Option) *Cache {
	return NewWithContext(context.Background(), opts...)
}

// NewWithContext stops the cleanup goroutine when ctx is done.
func NewWithContext(ctx context.Context, opts ...Option) *Cache {
	c := &Cache{
		items:    make(map[string]item),
		interval: defaultCleanupInterval,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cleanup(ctx)
	return c
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || it.expired(time.Now()) {
		return nil, false
	}
	return it.value, true
}

// Set stores value for ttl. A non-positive ttl is a no-op.
func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.items[key] = item{value: value, expiresAt: now.Add(ttl)}
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Len counts stored entries, expired ones included until the next sweep.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.stopChan)
	}
	c.mu.Unlock()
}

// evictLocked drops expired entries, or the one closest to expiry if none are.
func (c *Cache) evictLocked(now time.Time) {
	var (
		victim   string
		earliest time.Time
	)
	removed := 0
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
			removed++
			continue
		}
		if victim == "" || it.expiresAt.Before(earliest) {
			victim, earliest = k, it.expiresAt
		}
	}
	if removed == 0 && victim != "" {
		delete(c.items, victim)
	}
}

func (c *Cache) cleanup(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, it := range c.items {
		if it.expired(now) {
			delete(c.items, k)
		}
	}
}
