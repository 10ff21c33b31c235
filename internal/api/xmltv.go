package api

import (
	"net/http"

	"github.com/snapetech/epgbridge/internal/xmltv"
)

// xmltv serves the merged guide of every source that succeeded on the last refresh.
func (s *Server) xmltv(w http.ResponseWriter, r *http.Request) {
	ds := s.EPG.Get(r.Context())
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	if err := xmltv.WriteMerged(w, s.Generator, ds.Raw); err != nil {
		s.log().WithError(err).Debug("xmltv: client went away")
	}
}
