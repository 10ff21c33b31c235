package epgsource

import (
	"net/http"
	"sync"
)

// validators remembers, per source URL, the last document that decoded
// successfully together with its ETag / Last-Modified, so an unchanged
// source answers 304 and is not downloaded again.
type validators struct {
	mu      sync.Mutex
	entries map[string]validated
}

type validated struct {
	etag         string
	lastModified string
	doc          Document
}

func (v *validators) apply(req *http.Request) {
	v.mu.Lock()
	e, ok := v.entries[req.URL.String()]
	v.mu.Unlock()
	if !ok {
		return
	}
	if e.etag != "" {
		req.Header.Set("If-None-Match", e.etag)
	}
	if e.lastModified != "" {
		req.Header.Set("If-Modified-Since", e.lastModified)
	}
}

// notModified returns the document stored for url.
func (v *validators) notModified(url string) (Document, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[url]
	return e.doc, ok
}

// remember records doc when the response carried a validator. A response
// without one drops any stale entry.
func (v *validators) remember(url string, resp *http.Response, doc Document) {
	etag, lm := resp.Header.Get("ETag"), resp.Header.Get("Last-Modified")
	v.mu.Lock()
	defer v.mu.Unlock()
	if etag == "" && lm == "" {
		delete(v.entries, url)
		return
	}
	if v.entries == nil {
		v.entries = map[string]validated{}
	}
	v.entries[url] = validated{etag: etag, lastModified: lm, doc: doc}
}
