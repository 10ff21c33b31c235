// Package epgcache holds the process-wide EPG dataset and refreshes it from
// the configured sources when it is older than its TTL.
package epgcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/epgbridge/internal/catalog"
	"github.com/snapetech/epgbridge/internal/epgsource"
	"github.com/snapetech/epgbridge/internal/logging"
	"github.com/snapetech/epgbridge/internal/metrics"
	"github.com/snapetech/epgbridge/internal/store"
)

// DefaultTTL is how long a dataset is served before the sources are fetched again.
const DefaultTTL = 6 * time.Hour

// FetchFunc returns the documents of every source that could be fetched.
// epgsource.(*Fetcher).FetchAll satisfies it.
type FetchFunc func(ctx context.Context) []epgsource.Document

// Snapshotter persists datasets across restarts. *store.Store implements it.
type Snapshotter interface {
	Load(ctx context.Context) (*catalog.EPGDataset, error)
	Save(ctx context.Context, ds *catalog.EPGDataset) error
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now; tests use it to step across the TTL.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = logging.OrDiscard(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithSnapshot(s Snapshotter) Option {
	return func(c *Cache) { c.snap = s }
}

type Cache struct {
	fetch   FetchFunc
	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	snap    Snapshotter

	slot   atomic.Pointer[catalog.EPGDataset]
	group  singleflight.Group
	seeded sync.Once
}

func New(fetch FetchFunc, opts ...Option) *Cache {
	c := &Cache{
		fetch: fetch,
		ttl:   DefaultTTL,
		now:   time.Now,
		log:   logging.OrDiscard(nil),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the current dataset, refreshing it first when the slot is empty
// or older than the TTL. Concurrent callers share one refresh. A caller whose
// ctx ends while waiting gets the previous dataset (or an empty one); the
// refresh itself keeps running and still publishes its result.
func (c *Cache) Get(ctx context.Context) *catalog.EPGDataset {
	c.seeded.Do(func() { c.seed(ctx) })
	if ds := c.slot.Load(); ds != nil && c.fresh(ds) {
		c.metrics.CacheLookup(metrics.CacheEPG, true)
		return ds
	}
	c.metrics.CacheLookup(metrics.CacheEPG, false)
	return c.refresh(ctx, false)
}

// Refresh fetches all sources regardless of the current slot's age.
func (c *Cache) Refresh(ctx context.Context) *catalog.EPGDataset {
	return c.refresh(ctx, true)
}

// Peek returns the current dataset without refreshing. Nil before the first load.
func (c *Cache) Peek() *catalog.EPGDataset {
	return c.slot.Load()
}

// TTL is how long a dataset stays fresh.
func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) fresh(ds *catalog.EPGDataset) bool {
	return c.now().Sub(ds.FetchedAt) <= c.ttl
}

func (c *Cache) refresh(ctx context.Context, force bool) *catalog.EPGDataset {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan("epg", func() (any, error) {
		if ds := c.slot.Load(); !force && ds != nil && c.fresh(ds) {
			return ds, nil
		}
		return c.load(detached), nil
	})
	select {
	case res := <-ch:
		return res.Val.(*catalog.EPGDataset)
	case <-ctx.Done():
		if ds := c.slot.Load(); ds != nil {
			return ds
		}
		return catalog.EmptyDataset(c.now())
	}
}

func (c *Cache) load(ctx context.Context) *catalog.EPGDataset {
	started := c.now()
	var docs []epgsource.Document
	if c.fetch != nil {
		docs = c.fetch(ctx)
	}
	ds := Build(docs, started)
	c.slot.Store(ds)

	c.metrics.CacheRefresh(metrics.CacheEPG, nil)
	c.metrics.Dataset(len(ds.Channels), ds.ProgrammeCount())
	fields := logrus.Fields{
		"sources":    len(ds.Sources),
		"channels":   len(ds.Channels),
		"programmes": ds.ProgrammeCount(),
		"took":       c.now().Sub(started).Round(time.Millisecond),
	}
	if len(docs) == 0 {
		c.log.WithFields(fields).Warn("epg refresh: no source succeeded, caching empty dataset")
	} else {
		c.log.WithFields(fields).Info("epg refreshed")
	}

	if c.snap != nil {
		if err := c.snap.Save(ctx, ds); err != nil {
			c.log.WithError(err).Warn("epg snapshot save failed")
		}
	}
	return ds
}

// seed fills an empty slot from a fresh snapshot so a restart does not refetch
// every source. A stale or missing snapshot is ignored.
func (c *Cache) seed(ctx context.Context) {
	if c.snap == nil || c.slot.Load() != nil {
		return
	}
	ds, err := c.snap.Load(ctx)
	switch {
	case errors.Is(err, store.ErrNoSnapshot):
		return
	case err != nil:
		c.log.WithError(err).Warn("epg snapshot load failed")
		return
	case ds == nil:
		return
	case !c.fresh(ds):
		c.log.WithField("fetched_at", ds.FetchedAt).Debug("epg snapshot stale, ignoring")
		return
	}
	c.slot.CompareAndSwap(nil, ds)
	c.metrics.Dataset(len(ds.Channels), ds.ProgrammeCount())
	c.log.WithFields(logrus.Fields{
		"channels":   len(ds.Channels),
		"fetched_at": ds.FetchedAt,
	}).Info("epg seeded from snapshot")
}
