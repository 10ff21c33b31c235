package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/epgbridge/internal/epgsource"
	"github.com/snapetech/epgbridge/internal/safeurl"
)

// DefaultProvider is the provider name used for EPGBRIDGE_PROVIDER_URL.
const DefaultProvider = "default"

// Config holds server, EPG and upstream settings.
// Load from env; call LoadEnvFile(".env") first to use a .env file.
type Config struct {
	// HTTP API
	Listen  string // e.g. :8080
	BaseURL string // public URL of this server, used in get.php stream URLs; "" = derive from request

	// EPG sources
	EPGSources         []epgsource.Source
	EPGTTL             time.Duration
	EPGSourceTimeout   time.Duration // per source download
	EPGMaxBytes        int64         // decoded size cap per source
	EPGHostConcurrency int           // concurrent downloads per source host
	EPGConditional     bool          // revalidate sources with ETag / Last-Modified
	EPGLang            string        // "lang" of short-EPG listings
	Generator          string        // generator-info-name of the merged XMLTV
	SnapshotDB         string        // SQLite path; "" = no snapshot

	// Upstream Xtream panels, by provider name.
	Providers        map[string]string
	CatalogTTL       time.Duration
	UpstreamTimeout  time.Duration
	UpstreamRPS      float64 // requests per second per panel; 0 = unpaced
	UpstreamBurst    int
	UpstreamRetry429 bool // retry 429 after Retry-After (httpclient.PanelRetryPolicy)

	LogLevel string
	LogFile  string // "" = stdout only
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		Listen:             getEnv("EPGBRIDGE_LISTEN", ":8080"),
		BaseURL:            strings.TrimRight(os.Getenv("EPGBRIDGE_BASE_URL"), "/"),
		EPGSources:         parseSources(os.Getenv("EPGBRIDGE_EPG_SOURCES")),
		EPGTTL:             getEnvDuration("EPGBRIDGE_EPG_TTL", 6*time.Hour),
		EPGSourceTimeout:   getEnvDuration("EPGBRIDGE_EPG_SOURCE_TIMEOUT", 60*time.Second),
		EPGMaxBytes:        getEnvInt64("EPGBRIDGE_EPG_MAX_BYTES", epgsource.DefaultMaxBytes),
		EPGHostConcurrency: getEnvInt("EPGBRIDGE_EPG_HOST_CONCURRENCY", 2),
		EPGConditional:     getEnvBool("EPGBRIDGE_EPG_CONDITIONAL", true),
		EPGLang:            getEnv("EPGBRIDGE_EPG_LANG", "es"),
		Generator:          getEnv("EPGBRIDGE_GENERATOR", "epgbridge"),
		SnapshotDB:         os.Getenv("EPGBRIDGE_SNAPSHOT_DB"),
		Providers:          parseProviders(os.Getenv("EPGBRIDGE_PROVIDER_URL"), os.Getenv("EPGBRIDGE_PROVIDERS")),
		CatalogTTL:         getEnvDuration("EPGBRIDGE_CATALOG_TTL", 5*time.Minute),
		UpstreamTimeout:    getEnvDuration("EPGBRIDGE_UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamRPS:        getEnvFloat("EPGBRIDGE_UPSTREAM_RPS", 5),
		UpstreamBurst:      getEnvInt("EPGBRIDGE_UPSTREAM_BURST", 5),
		UpstreamRetry429:   getEnvBool("EPGBRIDGE_UPSTREAM_RETRY_429", false),
		LogLevel:           getEnv("EPGBRIDGE_LOG_LEVEL", "info"),
		LogFile:            os.Getenv("EPGBRIDGE_LOG_FILE"),
	}
	if c.EPGTTL <= 0 {
		c.EPGTTL = 6 * time.Hour
	}
	if c.CatalogTTL <= 0 {
		c.CatalogTTL = 5 * time.Minute
	}
	if c.EPGHostConcurrency <= 0 {
		c.EPGHostConcurrency = 2
	}
	if c.EPGMaxBytes <= 0 {
		c.EPGMaxBytes = epgsource.DefaultMaxBytes
	}
	if c.UpstreamBurst <= 0 {
		c.UpstreamBurst = 1
	}
	return c
}

// Validate rejects source and provider URLs that are not http(s), and
// provider names that cannot be used in a route or cache key.
func (c *Config) Validate() error {
	var errs []error
	for _, s := range c.EPGSources {
		if !safeurl.IsHTTPOrHTTPS(s.URL) {
			errs = append(errs, fmt.Errorf("epg source %q: not an http(s) URL", safeurl.Redact(s.URL)))
		}
	}
	for _, name := range c.ProviderNames() {
		if strings.ContainsAny(name, ":/ ") {
			errs = append(errs, fmt.Errorf("provider name %q: must not contain ':', '/' or spaces", name))
		}
		if u := c.Providers[name]; !safeurl.IsHTTPOrHTTPS(u) {
			errs = append(errs, fmt.Errorf("provider %q: %q is not an http(s) URL", name, safeurl.Redact(u)))
		}
	}
	if c.BaseURL != "" && !safeurl.IsHTTPOrHTTPS(c.BaseURL) {
		errs = append(errs, fmt.Errorf("base URL %q: not an http(s) URL", c.BaseURL))
	}
	return errors.Join(errs...)
}

// ProviderNames returns configured provider names, sorted.
func (c *Config) ProviderNames() []string {
	out := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// parseSources reads "url[|gz|plain],...". Without a flag, a path ending
// in .gz marks the source as gzip-compressed.
func parseSources(s string) []epgsource.Source {
	var out []epgsource.Source
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		raw, flag, _ := strings.Cut(part, "|")
		raw = strings.TrimSpace(raw)
		src := epgsource.Source{URL: raw}
		switch strings.ToLower(strings.TrimSpace(flag)) {
		case "gz", "gzip":
			src.Compressed = true
		case "plain", "xml":
		default:
			path := raw
			if u, err := url.Parse(raw); err == nil {
				path = u.Path
			}
			src.Compressed = strings.HasSuffix(strings.ToLower(path), ".gz")
		}
		out = append(out, src)
	}
	return out
}

// parseProviders merges the single default provider URL with "name=url,..." pairs.
func parseProviders(defaultURL, list string) map[string]string {
	out := map[string]string{}
	if u := strings.TrimSpace(defaultURL); u != "" {
		out[DefaultProvider] = strings.TrimRight(u, "/")
	}
	for _, part := range strings.Split(list, ",") {
		name, u, ok := strings.Cut(strings.TrimSpace(part), "=")
		name, u = strings.TrimSpace(name), strings.TrimSpace(u)
		if !ok || name == "" || u == "" {
			continue
		}
		out[name] = strings.TrimRight(u, "/")
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
