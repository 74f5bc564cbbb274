package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"immimate/internal/clb"
)

// Cached serves a table from memory for ttl, refreshing from the underlying
// source on expiry. Concurrent refreshes collapse into one load. A failed
// refresh keeps serving the previous table.
type Cached struct {
	next   Source
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	table    *clb.Table
	loadedAt time.Time
}

type CachedOption func(*Cached)

// WithClock injects the time source.
func WithClock(now func() time.Time) CachedOption {
	return func(c *Cached) {
		c.now = now
	}
}

func WithLogger(logger *slog.Logger) CachedOption {
	return func(c *Cached) {
		c.logger = logger
	}
}

func NewCached(next Source, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		next:   next,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Load(ctx context.Context) (*clb.Table, error) {
	c.mu.RLock()
	table, loadedAt := c.table, c.loadedAt
	c.mu.RUnlock()
	if table != nil && c.now().Sub(loadedAt) < c.ttl {
		return table, nil
	}

	v, err, _ := c.group.Do("table", func() (any, error) {
		fresh, err := c.next.Load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.table = fresh
		c.loadedAt = c.now()
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		if table != nil {
			c.logger.WarnContext(ctx, "clb table refresh failed, serving cached table",
				"error", err,
				"loaded_at", loadedAt,
			)
			return table, nil
		}
		return nil, err
	}
	return v.(*clb.Table), nil
}

// Invalidate drops the cached table so the next Load refreshes.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.table = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
