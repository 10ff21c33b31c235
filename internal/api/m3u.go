package api

import (
	"bufio"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/snapetech/epgbridge/internal/upstream"
	"github.com/snapetech/epgbridge/internal/xtream"
)

// playlist serves get.php as an M3U whose url-tvg points at our xmltv.php and
// whose stream URLs point back at this server.
func (s *Server) playlist(w http.ResponseWriter, r *http.Request) {
	name, _, ok := s.provider(r)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider")
		return
	}
	creds, ok := credentials(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "username and password required")
		return
	}
	entry, err := s.Catalog.Get(r.Context(), upstream.ProviderID(name, creds.Username), creds)
	if err != nil {
		s.log().WithField("provider", name).WithError(err).Warn("catalog unavailable")
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}

	groups := make(map[string]string, len(entry.Categories))
	for _, c := range entry.Categories {
		groups[c.CategoryID] = c.CategoryName
	}
	base := s.publicBase(r)
	if name != s.DefaultProvider {
		base += "/p/" + url.PathEscape(name)
	}
	auth := "?username=" + url.QueryEscape(creds.Username) + "&password=" + url.QueryEscape(creds.Password)
	userPath := "/live/" + url.PathEscape(creds.Username) + "/" + url.PathEscape(creds.Password) + "/"

	w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	bw := bufio.NewWriter(w)
	bw.WriteString("#EXTM3U url-tvg=\"" + base + "/xmltv.php" + auth + "\"\n")
	for _, st := range entry.Streams {
		title := strings.ReplaceAll(st.Name, ",", " ")
		bw.WriteString("#EXTINF:-1 tvg-id=\"" + escapeM3UAttr(st.EPGChannelID) +
			"\" tvg-name=\"" + escapeM3UAttr(title) +
			"\" tvg-logo=\"" + escapeM3UAttr(st.FieldString("stream_icon")) +
			"\" group-title=\"" + escapeM3UAttr(groups[st.CategoryID]) + "\"," + title + "\n")
		bw.WriteString(base + userPath + url.PathEscape(st.StreamID) + ".ts\n")
	}
	bw.Flush()
}

// live redirects a stream request to the upstream panel.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	_, panel, ok := s.provider(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	v := mux.Vars(r)
	creds := xtream.Credentials{Username: v["user"], Password: v["pass"]}
	http.Redirect(w, r, panel.StreamURL(creds, v["stream"]), http.StatusFound)
}

func (s *Server) publicBase(r *http.Request) string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func escapeM3UAttr(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
