// Package api serves the provider-compatible HTTP surface: player_api.php,
// xmltv.php, get.php and live stream redirects, plus /healthz and /metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/snapetech/epgbridge/internal/catalog"
	"github.com/snapetech/epgbridge/internal/logging"
	"github.com/snapetech/epgbridge/internal/upstream"
	"github.com/snapetech/epgbridge/internal/xtream"
)

// EPG is the guide cache. *epgcache.Cache implements it.
type EPG interface {
	Get(ctx context.Context) *catalog.EPGDataset
	Peek() *catalog.EPGDataset
	TTL() time.Duration
}

// Catalog is the provider catalog cache. *upstream.Cache implements it.
type Catalog interface {
	Get(ctx context.Context, providerID string, creds xtream.Credentials) (*upstream.Entry, error)
	Len() int
}

type Server struct {
	EPG     EPG
	Catalog Catalog
	// Panels by provider name; DefaultProvider serves the unprefixed routes.
	Panels          map[string]*xtream.Client
	DefaultProvider string

	BaseURL   string // "" = derive from the request
	Generator string
	Lang      string
	Gatherer  prometheus.Gatherer // nil: /metrics not served
	Log       logrus.FieldLogger
	Now       func() time.Time
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log()))

	for _, prefix := range []string{"", "/p/{provider}"} {
		r.HandleFunc(prefix+"/player_api.php", s.playerAPI).Methods(http.MethodGet, http.MethodPost)
		r.HandleFunc(prefix+"/xmltv.php", s.xmltv).Methods(http.MethodGet, http.MethodHead)
		r.HandleFunc(prefix+"/get.php", s.playlist).Methods(http.MethodGet)
		r.HandleFunc(prefix+"/live/{user}/{pass}/{stream}", s.live).Methods(http.MethodGet, http.MethodHead)
	}
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) log() logrus.FieldLogger {
	return logging.OrDiscard(s.Log)
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// provider resolves the route's provider name and its panel.
func (s *Server) provider(r *http.Request) (string, *xtream.Client, bool) {
	name := mux.Vars(r)["provider"]
	if name == "" {
		name = s.DefaultProvider
	}
	cl, ok := s.Panels[name]
	return name, cl, ok
}

func credentials(r *http.Request) (xtream.Credentials, bool) {
	c := xtream.Credentials{Username: r.FormValue("username"), Password: r.FormValue("password")}
	return c, c.Username != "" && c.Password != ""
}

type healthResponse struct {
	Status         string                  `json:"status"`
	EPGFetchedAt   *time.Time              `json:"epg_fetched_at,omitempty"`
	EPGExpiresAt   *time.Time              `json:"epg_expires_at,omitempty"`
	EPGChannels    int                     `json:"epg_channels"`
	EPGProgrammes  int                     `json:"epg_programmes"`
	EPGSources     []catalog.SourceSummary `json:"epg_sources"`
	CatalogEntries int                     `json:"catalog_entries"`
}

// healthz reports the current state without triggering any fetch.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", EPGSources: []catalog.SourceSummary{}}
	if ds := s.EPG.Peek(); ds != nil {
		at := ds.FetchedAt
		resp.EPGFetchedAt = &at
		exp := at.Add(s.EPG.TTL())
		resp.EPGExpiresAt = &exp
		resp.EPGChannels = len(ds.Channels)
		resp.EPGProgrammes = ds.ProgrammeCount()
		if ds.Sources != nil {
			resp.EPGSources = ds.Sources
		}
	} else {
		resp.Status = "starting"
	}
	if s.Catalog != nil {
		resp.CatalogEntries = s.Catalog.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
