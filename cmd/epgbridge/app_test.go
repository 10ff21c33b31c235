package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/epgbridge/internal/config"
	"github.com/snapetech/epgbridge/internal/epgsource"
	"github.com/snapetech/epgbridge/internal/store"
	"github.com/snapetech/epgbridge/internal/xtream"
)

func xmltvNow() string {
	now := time.Now().UTC()
	ts := func(t time.Time) string { return t.Format("20060102150405") + " +0000" }
	return `<?xml version="1.0" encoding="UTF-8"?>
<tv>
<channel id="Telefe.ar"><display-name>Telefe</display-name></channel>
<channel id="TyC.Sports.ar"><display-name>TyC Sports</display-name></channel>
<programme start="` + ts(now.Add(-30*time.Minute)) + `" stop="` + ts(now.Add(30*time.Minute)) + `" channel="Telefe.ar"><title>Noticias &amp; Más</title><desc>Resumen</desc></programme>
<programme start="` + ts(now.Add(30*time.Minute)) + `" stop="` + ts(now.Add(90*time.Minute)) + `" channel="Telefe.ar"><title>Novela</title></programme>
</tv>`
}

type fixture struct {
	app        *app
	api        *httptest.Server
	epgHits    *int32
	panelCalls *int32
	guideHits  *int32
}

func newFixture(t *testing.T, snapshot string) fixture {
	t.Helper()
	var epgHits, panelCalls, guideHits int32
	epgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&epgHits, 1)
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, xmltvNow())
	}))
	t.Cleanup(epgSrv.Close)

	panel := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&panelCalls, 1)
		if r.URL.Path == "/xmltv.php" {
			atomic.AddInt32(&guideHits, 1)
		}
		switch r.URL.Query().Get("action") {
		case "get_live_categories":
			io.WriteString(w, `[{"category_id":"1","category_name":"Argentina"}]`)
		case "get_live_streams":
			io.WriteString(w, `[
				{"num":1,"name":"AR: Telefe HD","stream_id":101,"category_id":"1","epg_channel_id":""},
				{"num":2,"name":"TyC Sports ᶠᴴᴰ","stream_id":102,"category_id":"1","epg_channel_id":null},
				{"num":3,"name":"Canal Desconocido","stream_id":103,"category_id":"1"}
			]`)
		default:
			io.WriteString(w, `{"user_info":{"auth":1}}`)
		}
	}))
	t.Cleanup(panel.Close)

	cfg := &config.Config{
		EPGSources:         []epgsource.Source{{URL: epgSrv.URL + "/guide.xml"}},
		EPGTTL:             time.Hour,
		EPGSourceTimeout:   5 * time.Second,
		EPGMaxBytes:        epgsource.DefaultMaxBytes,
		EPGHostConcurrency: 2,
		EPGLang:            "es",
		Generator:          "epgbridge",
		SnapshotDB:         snapshot,
		Providers:          map[string]string{config.DefaultProvider: panel.URL},
		CatalogTTL:         time.Minute,
		UpstreamTimeout:    5 * time.Second,
	}
	require.NoError(t, cfg.Validate())
	log := logrus.New()
	log.SetOutput(io.Discard)
	a, err := newApp(cfg, log)
	require.NoError(t, err)
	t.Cleanup(a.close)

	api := httptest.NewServer(a.handler())
	t.Cleanup(api.Close)
	return fixture{app: a, api: api, epgHits: &epgHits, panelCalls: &panelCalls, guideHits: &guideHits}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestApp_endToEnd(t *testing.T) {
	f := newFixture(t, "")
	q := "/player_api.php?username=u&password=p"

	var streams []map[string]any
	getJSON(t, f.api.URL+q+"&action=get_live_streams", &streams)
	require.Len(t, streams, 3)
	assert.Equal(t, "Telefe.ar", streams[0]["epg_channel_id"])
	assert.Equal(t, "TyC.Sports.ar", streams[1]["epg_channel_id"])
	assert.Nil(t, streams[2]["epg_channel_id"])
	assert.Equal(t, float64(1), streams[0]["num"])

	var short struct {
		Listings []map[string]any `json:"epg_listings"`
	}
	getJSON(t, f.api.URL+q+"&action=get_short_epg&stream_id=101", &short)
	require.Len(t, short.Listings, 2)
	title, err := base64.StdEncoding.DecodeString(short.Listings[0]["title"].(string))
	require.NoError(t, err)
	assert.Equal(t, "Noticias & Más", string(title))
	assert.Equal(t, float64(1), short.Listings[0]["now_playing"])

	resp, err := http.Get(f.api.URL + "/xmltv.php" + q[len("/player_api.php"):])
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `<tv generator-info-name="epgbridge">`)
	assert.Contains(t, string(body), `<channel id="TyC.Sports.ar">`)

	// Catalog and guide were each fetched once; the rest came from cache.
	assert.Equal(t, int32(1), atomic.LoadInt32(f.epgHits))
	assert.Equal(t, int32(2), atomic.LoadInt32(f.panelCalls))

	var health map[string]any
	getJSON(t, f.api.URL+"/healthz", &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["catalog_entries"])

	resp, err = http.Get(f.api.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `epgbridge_stream_matches_total{method="exact"} 2`)
	assert.Contains(t, string(body), `epgbridge_stream_matches_total{method="none"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestApp_snapshotSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	f := newFixture(t, path)

	ds := f.app.epg.Refresh(t.Context())
	require.Len(t, ds.Channels, 2)
	f.app.close()

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	saved, err := st.Load(t.Context())
	require.NoError(t, err)
	assert.Len(t, saved.Channels, 2)
	assert.Equal(t, 2, saved.ProgrammeCount())
}

func TestApp_playlist(t *testing.T) {
	f := newFixture(t, "")
	resp, err := http.Get(f.api.URL + "/get.php?username=u&password=p&type=m3u_plus")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, fmt.Sprintf(`#EXTM3U url-tvg="%s/xmltv.php?username=u&password=p"`, f.api.URL), lines[0])
	assert.Contains(t, lines[1], `tvg-id="Telefe.ar"`)
	assert.Equal(t, f.api.URL+"/live/u/p/101.ts", lines[2])
}

func TestRunCheck(t *testing.T) {
	f := newFixture(t, "")
	creds := xtream.Credentials{Username: "u", Password: "p"}
	require.NoError(t, runCheck(t.Context(), f.app, creds, f.api.URL))
	assert.Equal(t, int32(2), atomic.LoadInt32(f.panelCalls), "auth plus the panel guide export")
	assert.Equal(t, int32(1), atomic.LoadInt32(f.guideHits))

	// Without credentials only the panel's reachability is checked.
	require.NoError(t, runCheck(t.Context(), f.app, xtream.Credentials{}, ""))
	assert.Equal(t, int32(1), atomic.LoadInt32(f.guideHits))

	assert.Error(t, runCheck(t.Context(), f.app, creds, "http://127.0.0.1:1"))
}
