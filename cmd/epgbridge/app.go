package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/snapetech/epgbridge/internal/api"
	"github.com/snapetech/epgbridge/internal/config"
	"github.com/snapetech/epgbridge/internal/epgcache"
	"github.com/snapetech/epgbridge/internal/epgsource"
	"github.com/snapetech/epgbridge/internal/httpclient"
	"github.com/snapetech/epgbridge/internal/metrics"
	"github.com/snapetech/epgbridge/internal/store"
	"github.com/snapetech/epgbridge/internal/upstream"
	"github.com/snapetech/epgbridge/internal/xtream"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	store   *store.Store // nil without EPGBRIDGE_SNAPSHOT_DB
	fetcher *epgsource.Fetcher
	epg     *epgcache.Cache
	panels  map[string]*xtream.Client
	catalog *upstream.Cache
}

func newApp(cfg *config.Config, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.reg)

	a.fetcher = &epgsource.Fetcher{
		Sources:     cfg.EPGSources,
		Client:      httpclient.WithTimeout(cfg.EPGSourceTimeout),
		Hosts:       httpclient.NewHostSemaphore(cfg.EPGHostConcurrency),
		MaxBytes:    cfg.EPGMaxBytes,
		Log:         log.WithField("component", "epgsource"),
		Metrics:     a.metrics,
		Conditional: cfg.EPGConditional,
	}

	opts := []epgcache.Option{
		epgcache.WithTTL(cfg.EPGTTL),
		epgcache.WithLogger(log.WithField("component", "epgcache")),
		epgcache.WithMetrics(a.metrics),
	}
	if cfg.SnapshotDB != "" {
		st, err := store.Open(cfg.SnapshotDB)
		if err != nil {
			return nil, fmt.Errorf("snapshot db: %w", err)
		}
		a.store = st
		opts = append(opts, epgcache.WithSnapshot(st))
	}
	a.epg = epgcache.New(a.fetcher.FetchAll, opts...)

	a.panels = make(map[string]*xtream.Client, len(cfg.Providers))
	for name, base := range cfg.Providers {
		cl := xtream.NewClient(base, cfg.UpstreamTimeout, cfg.UpstreamRPS, cfg.UpstreamBurst)
		cl.Retry = httpclient.NoRetry
		if cfg.UpstreamRetry429 {
			cl.Retry = httpclient.PanelRetryPolicy
		}
		a.panels[name] = cl
	}
	a.catalog = upstream.New(upstream.ClientFetch(a.panels), a.epg,
		upstream.WithTTL(cfg.CatalogTTL),
		upstream.WithLogger(log.WithField("component", "upstream")),
		upstream.WithMetrics(a.metrics),
	)
	return a, nil
}

func (a *app) server() *api.Server {
	return &api.Server{
		EPG:             a.epg,
		Catalog:         a.catalog,
		Panels:          a.panels,
		DefaultProvider: config.DefaultProvider,
		BaseURL:         a.cfg.BaseURL,
		Generator:       a.cfg.Generator,
		Lang:            a.cfg.EPGLang,
		Gatherer:        a.reg,
		Log:             a.log.WithField("component", "api"),
	}
}

func (a *app) handler() http.Handler {
	return a.server().Handler()
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("close snapshot db")
		}
		a.store = nil
	}
}
