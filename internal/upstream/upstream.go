// Package upstream caches each provider's live catalog for a short TTL and
// enriches its streams with EPG channel IDs before storing them.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/snapetech/epgbridge/internal/catalog"
	"github.com/snapetech/epgbridge/internal/epglink"
	"github.com/snapetech/epgbridge/internal/logging"
	"github.com/snapetech/epgbridge/internal/metrics"
	"github.com/snapetech/epgbridge/internal/xtream"
)

const DefaultTTL = 5 * time.Minute

// ErrUnknownProvider is returned for a provider name with no configured panel.
var ErrUnknownProvider = errors.New("upstream: unknown provider")

// ProviderID is the cache key for one account on one provider.
func ProviderID(provider, username string) string {
	return provider + ":" + username
}

// SplitProviderID is the inverse of ProviderID.
func SplitProviderID(id string) (provider, username string) {
	provider, username, _ = strings.Cut(id, ":")
	return provider, username
}

// FetchFunc loads the live categories and streams for providerID.
type FetchFunc func(ctx context.Context, providerID string, creds xtream.Credentials) ([]catalog.Category, []catalog.Stream, error)

// EPGSource supplies the dataset used for enrichment. *epgcache.Cache implements it.
type EPGSource interface {
	Get(ctx context.Context) *catalog.EPGDataset
}

// Entry is one provider's cached catalog. Callers must treat it as read-only.
type Entry struct {
	Categories []catalog.Category
	Streams    []catalog.Stream
	FetchedAt  time.Time
	Enrichment epglink.ApplyResult
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = logging.OrDiscard(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

type Cache struct {
	fetch   FetchFunc
	epg     EPGSource
	ttl     time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*Entry
	group   singleflight.Group
}

func New(fetch FetchFunc, epg EPGSource, opts ...Option) *Cache {
	c := &Cache{
		fetch:   fetch,
		epg:     epg,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     logging.OrDiscard(nil),
		entries: map[string]*Entry{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the catalog for providerID, fetching and enriching it when
// missing or older than the TTL. A failed fetch drops any entry for the key
// and returns the error; nothing is cached.
func (c *Cache) Get(ctx context.Context, providerID string, creds xtream.Credentials) (*Entry, error) {
	if e := c.lookup(providerID); e != nil {
		c.metrics.CacheLookup(metrics.CacheCatalog, true)
		return e, nil
	}
	c.metrics.CacheLookup(metrics.CacheCatalog, false)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(providerID, func() (any, error) {
		if e := c.lookup(providerID); e != nil {
			return e, nil
		}
		return c.load(detached, providerID, creds)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) lookup(providerID string) *Entry {
	c.mu.RLock()
	e := c.entries[providerID]
	c.mu.RUnlock()
	if e == nil || c.now().Sub(e.FetchedAt) > c.ttl {
		return nil
	}
	return e
}

func (c *Cache) load(ctx context.Context, providerID string, creds xtream.Credentials) (*Entry, error) {
	log := c.log.WithField("provider", providerID)
	started := c.now()
	cats, streams, err := c.fetch(ctx, providerID, creds)
	c.metrics.CacheRefresh(metrics.CacheCatalog, err)
	if err != nil {
		c.Invalidate(providerID)
		log.WithError(err).Warn("catalog fetch failed")
		return nil, fmt.Errorf("catalog %s: %w", providerID, err)
	}

	var ds *catalog.EPGDataset
	if c.epg != nil {
		ds = c.epg.Get(ctx)
	}
	res := epglink.EnrichStreams(streams, ds)
	for method, n := range res.Methods {
		c.metrics.Match(method, n)
	}
	c.metrics.Match(string(epglink.MatchExisting), res.AlreadyLinked)
	c.metrics.Match("none", res.Unmatched)

	e := &Entry{Categories: cats, Streams: streams, FetchedAt: started, Enrichment: res}
	c.mu.Lock()
	c.entries[providerID] = e
	c.mu.Unlock()
	log.WithFields(logrus.Fields{
		"categories":     len(cats),
		"streams":        len(streams),
		"applied":        res.Applied,
		"already_linked": res.AlreadyLinked,
		"unmatched":      res.Unmatched,
	}).Info("catalog refreshed")
	return e, nil
}

// Invalidate drops the entry for providerID so the next Get refetches.
func (c *Cache) Invalidate(providerID string) {
	c.mu.Lock()
	delete(c.entries, providerID)
	c.mu.Unlock()
}

// Len is the number of cached entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ClientFetch returns a FetchFunc that routes providerID to the panel
// registered under its provider name.
func ClientFetch(clients map[string]*xtream.Client) FetchFunc {
	return func(ctx context.Context, providerID string, creds xtream.Credentials) ([]catalog.Category, []catalog.Stream, error) {
		name, _ := SplitProviderID(providerID)
		cl, ok := clients[name]
		if !ok {
			return nil, nil, fmt.Errorf("%w %q", ErrUnknownProvider, name)
		}
		cats, err := cl.LiveCategories(ctx, creds)
		if err != nil {
			return nil, nil, err
		}
		streams, err := cl.LiveStreams(ctx, creds, "")
		if err != nil {
			return nil, nil, err
		}
		return cats, streams, nil
	}
}
