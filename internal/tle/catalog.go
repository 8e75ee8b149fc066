// Package tle fetches, caches and parses three-line element catalogs.
package tle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultInterval is how long a fetched catalog is served before the next
// Get goes back to the network.
const DefaultInterval = 12 * time.Hour

// ErrEmptyCatalog is returned when a fetch succeeds but yields no lines.
var ErrEmptyCatalog = errors.New("catalog is empty")

// Catalog is an immutable snapshot of fetched catalog text.
type Catalog struct {
	Lines     []string
	FetchedAt time.Time
	Source    string
}

// Empty reports whether c carries no lines.
func (c Catalog) Empty() bool { return len(c.Lines) == 0 }

// Source fetches raw catalog text. *Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	SourceURL() string
}

// MetricsRecorder receives fetch outcomes. *metrics.Collector implements it.
type MetricsRecorder interface {
	CatalogFetched(lines int)
	CatalogFetchFailed()
}

// CatalogCache serves the most recent catalog and refetches it once it is
// older than Interval. The cached snapshot is replaced wholesale; concurrent
// callers that miss the cache share a single fetch.
type CatalogCache struct {
	source   Source
	interval time.Duration
	metrics  MetricsRecorder
	logger   *slog.Logger

	current atomic.Pointer[Catalog]
	group   singleflight.Group
}

// NewCatalogCache creates an empty cache over source. A non-positive interval
// selects DefaultInterval. metrics may be nil.
func NewCatalogCache(source Source, interval time.Duration, metrics MetricsRecorder, logger *slog.Logger) *CatalogCache {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CatalogCache{
		source:   source,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
	}
}

// Interval returns the refetch interval.
func (c *CatalogCache) Interval() time.Duration { return c.interval }

// Peek returns the cached catalog without fetching. ok is false when nothing
// has been fetched yet.
func (c *CatalogCache) Peek() (cat Catalog, ok bool) {
	p := c.current.Load()
	if p == nil {
		return Catalog{}, false
	}
	return *p, true
}

// Fresh reports whether the cached catalog can be served at now without a
// fetch.
func (c *CatalogCache) Fresh(now time.Time) bool {
	p := c.current.Load()
	return p != nil && now.Sub(p.FetchedAt) < c.interval
}

// Get returns the cached catalog when it is younger than the interval at now.
// Otherwise it fetches, stores the result stamped with now and returns it.
//
// On failure Get returns an empty Catalog and the error; the previously cached
// catalog and its timestamp are left untouched, so the next call retries.
func (c *CatalogCache) Get(ctx context.Context, now time.Time) (Catalog, error) {
	if p := c.current.Load(); p != nil && now.Sub(p.FetchedAt) < c.interval {
		return *p, nil
	}

	v, err, shared := c.group.Do("catalog", func() (any, error) {
		// A caller that lost the race may find the cache already refreshed.
		if p := c.current.Load(); p != nil && now.Sub(p.FetchedAt) < c.interval {
			return p, nil
		}
		return c.fetch(context.WithoutCancel(ctx), now)
	})
	if err != nil {
		return Catalog{}, err
	}
	if shared {
		c.logger.Debug("joined in-flight catalog fetch")
	}
	return *v.(*Catalog), nil
}

// Invalidate forces the next Get to fetch. The cached catalog remains
// visible to Peek until then.
func (c *CatalogCache) Invalidate() {
	p := c.current.Load()
	if p == nil {
		return
	}
	stale := *p
	stale.FetchedAt = time.Time{}
	c.current.CompareAndSwap(p, &stale)
}

func (c *CatalogCache) fetch(ctx context.Context, now time.Time) (*Catalog, error) {
	start := time.Now()
	data, err := c.source.Fetch(ctx)
	if err != nil {
		c.fail(err)
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	lines := SplitLines(data)
	if len(lines) == 0 {
		c.fail(ErrEmptyCatalog)
		return nil, fmt.Errorf("fetch catalog from %s: %w", c.source.SourceURL(), ErrEmptyCatalog)
	}

	cat := &Catalog{
		Lines:     lines,
		FetchedAt: now,
		Source:    c.source.SourceURL(),
	}
	c.current.Store(cat)

	if c.metrics != nil {
		c.metrics.CatalogFetched(len(lines))
	}
	c.logger.Info("catalog fetched",
		"source", cat.Source,
		"lines", len(lines),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return cat, nil
}

func (c *CatalogCache) fail(err error) {
	if c.metrics != nil {
		c.metrics.CatalogFetchFailed()
	}
	c.logger.Warn("catalog fetch failed", "source", c.source.SourceURL(), "error", err)
}
