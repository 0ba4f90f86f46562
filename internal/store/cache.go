package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vela/internal/domain"
)

// Compile-time interface check.
var _ BarStore = (*CachedBarStore)(nil)

// CachedBarStore wraps a BarStore with a process-local TTL cache keyed by
// (symbol, start, end). Repeated backtests over the same range skip the disk
// read entirely. Writes invalidate the whole cache.
type CachedBarStore struct {
	inner BarStore
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	bars    []domain.Bar
	expires time.Time
}

// NewCachedBarStore wraps inner with a TTL cache. A zero or negative ttl
// defaults to five minutes.
func NewCachedBarStore(inner BarStore, ttl time.Duration) *CachedBarStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedBarStore{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// WriteBars delegates to the inner store and drops all cached entries.
func (c *CachedBarStore) WriteBars(ctx context.Context, bars []domain.Bar) error {
	if err := c.inner.WriteBars(ctx, bars); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	return nil
}

// ReadBars serves from cache when a fresh entry exists, reading through to
// the inner store otherwise. Cached slices are shared; callers must treat
// them as read-only, which BarStore consumers already do.
func (c *CachedBarStore) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	key := fmt.Sprintf("%s|%d|%d", symbol, start.UnixMilli(), end.UnixMilli())

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.bars, nil
	}

	bars, err := c.inner.ReadBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{bars: bars, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return bars, nil
}

// ListSymbols delegates to the inner store; symbol listings are cheap and
// not cached.
func (c *CachedBarStore) ListSymbols(ctx context.Context) ([]string, error) {
	return c.inner.ListSymbols(ctx)
}
