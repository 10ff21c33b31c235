// Package metrics holds the prometheus collectors shared by the caches, the
// EPG fetcher and the matcher. A nil *Metrics is valid and records nothing,
// which keeps tests and one-shot CLI commands free of registry plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "epgbridge"

// Cache names used as the "cache" label.
const (
	CacheEPG     = "epg"
	CacheCatalog = "catalog"
)

type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	cacheRefreshes *prometheus.CounterVec
	sourceFetches  *prometheus.CounterVec
	matches        *prometheus.CounterVec
	channels       prometheus.Gauge
	programmes     prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result (hit, miss).",
		}, []string{"cache", "result"}),
		cacheRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Cache refreshes by cache and outcome (ok, error).",
		}, []string{"cache", "outcome"}),
		sourceFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epg_source_fetches_total",
			Help:      "EPG source fetch attempts by outcome (ok, skipped).",
		}, []string{"outcome"}),
		matches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_matches_total",
			Help:      "Stream enrichment results by method (existing, exact, fuzzy, none).",
		}, []string{"method"}),
		channels: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epg_channels",
			Help:      "Channels in the live EPG dataset.",
		}),
		programmes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epg_programmes",
			Help:      "Programmes in the live EPG dataset.",
		}),
	}
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) CacheRefresh(cache string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cacheRefreshes.WithLabelValues(cache, outcome).Inc()
}

func (m *Metrics) SourceFetch(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "skipped"
	}
	m.sourceFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Match(method string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.matches.WithLabelValues(method).Add(float64(n))
}

func (m *Metrics) Dataset(channels, programmes int) {
	if m == nil {
		return
	}
	m.channels.Set(float64(channels))
	m.programmes.Set(float64(programmes))
}
