package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/snapetech/epgbridge/internal/catalog"
	"github.com/snapetech/epgbridge/internal/guide"
	"github.com/snapetech/epgbridge/internal/normalize"
	"github.com/snapetech/epgbridge/internal/upstream"
	"github.com/snapetech/epgbridge/internal/xtream"
)

// defaultShortEPGLimit matches what Xtream panels return when a client omits limit.
const defaultShortEPGLimit = 4

type epgListings struct {
	Listings []guide.Listing `json:"epg_listings"`
}

func (s *Server) playerAPI(w http.ResponseWriter, r *http.Request) {
	name, panel, ok := s.provider(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}
	creds, ok := credentials(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "username and password required")
		return
	}
	action := r.FormValue("action")
	log := s.log().WithField("provider", name).WithField("action", action)

	if action == "" {
		body, err := panel.Authenticate(r.Context(), creds)
		if err != nil {
			log.WithError(err).Warn("upstream auth failed")
			writeError(w, http.StatusBadGateway, "upstream unavailable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}

	switch action {
	case "get_live_categories", "get_live_streams", "get_short_epg", "get_simple_data_table":
	default:
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}

	entry, err := s.Catalog.Get(r.Context(), upstream.ProviderID(name, creds.Username), creds)
	if err != nil {
		log.WithError(err).Warn("catalog unavailable")
		status := http.StatusBadGateway
		if errors.Is(err, xtream.ErrNoCredentials) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, "upstream unavailable")
		return
	}

	switch action {
	case "get_live_categories":
		cats := entry.Categories
		if cats == nil {
			cats = []catalog.Category{}
		}
		writeJSON(w, http.StatusOK, cats)
	case "get_live_streams":
		writeJSON(w, http.StatusOK, filterCategory(entry.Streams, r.FormValue("category_id")))
	case "get_short_epg":
		limit := defaultShortEPGLimit
		if v := r.FormValue("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		s.writeListings(w, r, entry, func(progs []catalog.Programme, epgID string, now int64) []guide.Listing {
			return guide.ShortEPG(progs, epgID, now, limit, s.Lang)
		})
	case "get_simple_data_table":
		s.writeListings(w, r, entry, func(progs []catalog.Programme, epgID string, now int64) []guide.Listing {
			return guide.FullTable(progs, epgID, now, s.Lang)
		})
	}
}

func (s *Server) writeListings(w http.ResponseWriter, r *http.Request, entry *upstream.Entry, render func([]catalog.Programme, string, int64) []guide.Listing) {
	streamID := strings.TrimSpace(r.FormValue("stream_id"))
	if streamID == "" {
		writeError(w, http.StatusBadRequest, "stream_id required")
		return
	}
	out := epgListings{Listings: []guide.Listing{}}
	st, ok := findStream(entry.Streams, streamID)
	if ok && st.EPGChannelID != "" {
		ds := s.EPG.Get(r.Context())
		if progs := programmesFor(ds, st.EPGChannelID); len(progs) > 0 {
			out.Listings = render(progs, st.EPGChannelID, s.now().Unix())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func filterCategory(streams []catalog.Stream, categoryID string) []catalog.Stream {
	if categoryID == "" {
		if streams == nil {
			return []catalog.Stream{}
		}
		return streams
	}
	out := []catalog.Stream{}
	for _, st := range streams {
		if st.CategoryID == categoryID {
			out = append(out, st)
		}
	}
	return out
}

func findStream(streams []catalog.Stream, id string) (catalog.Stream, bool) {
	for _, st := range streams {
		if st.StreamID == id {
			return st, true
		}
	}
	return catalog.Stream{}, false
}

// programmesFor looks up by exact channel ID, then by normalized ID so an
// upstream-provided "telefe.ar" still finds programmes filed under "Telefe.ar".
func programmesFor(ds *catalog.EPGDataset, epgID string) []catalog.Programme {
	if progs := ds.ProgrammesFor(epgID); len(progs) > 0 {
		return progs
	}
	if ds == nil {
		return nil
	}
	nid := normalize.ChannelID(epgID)
	if nid == "" {
		return nil
	}
	for _, ch := range ds.Channels {
		if ch.NormalizedID == nid {
			return ds.ProgrammesFor(ch.ID)
		}
	}
	return nil
}
