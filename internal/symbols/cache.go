package symbols

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a loaded symbol table is reused.
const DefaultCacheTTL = 5 * time.Minute

type LoadFunc func(ctx context.Context, workspace string) (*Table, error)

// Cache holds loaded symbol tables keyed by canonical workspace root.
// At most one load per key runs at a time; concurrent callers for the same
// key wait for the in-flight load. Failed loads are not cached.
type Cache struct {
	mu      sync.Mutex
	load    LoadFunc
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	ready    chan struct{}
	table    *Table
	err      error
	loadedAt time.Time
}

func NewCache(load LoadFunc, ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{
		load:    load,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*cacheEntry),
	}
}

func (c *Cache) Get(ctx context.Context, workspace string) (*Table, error) {
	for {
		c.mu.Lock()
		entry, ok := c.entries[workspace]
		if ok {
			select {
			case <-entry.ready:
				if entry.err == nil && c.now().Sub(entry.loadedAt) < c.ttl {
					table := entry.table
					c.mu.Unlock()
					return table, nil
				}
				delete(c.entries, workspace)
			default:
				c.mu.Unlock()
				select {
				case <-entry.ready:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
		}

		entry = &cacheEntry{ready: make(chan struct{})}
		c.entries[workspace] = entry
		c.mu.Unlock()

		table, err := c.load(ctx, workspace)

		c.mu.Lock()
		entry.table = table
		entry.err = err
		entry.loadedAt = c.now()
		if err != nil {
			delete(c.entries, workspace)
		}
		close(entry.ready)
		c.mu.Unlock()
		return table, err
	}
}

// Invalidate drops the cached table for a workspace, forcing the next Get
// to reload. Safe to call while a load is in flight.
func (c *Cache) Invalidate(workspace string) {
	c.mu.Lock()
	delete(c.entries, workspace)
	c.mu.Unlock()
}
