package epgsource

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/text/encoding/charmap"

	"github.com/snapetech/epgbridge/internal/httpclient"
)

const guide = `<?xml version="1.0" encoding="UTF-8"?><tv><channel id="a.ar"><display-name>Canal A</display-name></channel></tv>`

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return b.Bytes()
}

func TestFetchAll_orderAndSkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/plain.xml":
			w.Write([]byte(guide))
		case "/file.xml.gz":
			w.Header().Set("Content-Type", "application/gzip")
			w.Write(gz(t, strings.Replace(guide, "a.ar", "gz.ar", 1)))
		case "/broken.xml.gz":
			w.Write([]byte("not gzip"))
		case "/slow.xml":
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(guide))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := &Fetcher{
		Sources: []Source{
			{URL: srv.URL + "/missing.xml"},
			{URL: srv.URL + "/file.xml.gz", Compressed: true},
			{URL: srv.URL + "/broken.xml.gz", Compressed: true},
			{URL: srv.URL + "/slow.xml"},
			{URL: srv.URL + "/plain.xml"},
		},
		Client: &http.Client{Timeout: 100 * time.Millisecond},
	}
	docs := f.FetchAll(context.Background())
	if len(docs) != 2 {
		t.Fatalf("docs=%d want 2: %+v", len(docs), docs)
	}
	if !strings.Contains(docs[0].Text, `id="gz.ar"`) || docs[0].Source.URL != srv.URL+"/file.xml.gz" {
		t.Errorf("doc 0 = %+v", docs[0])
	}
	if docs[1].Text != guide {
		t.Errorf("doc 1 text = %q", docs[1].Text)
	}
}

func TestFetchAll_noSources(t *testing.T) {
	var f Fetcher
	if docs := f.FetchAll(context.Background()); len(docs) != 0 {
		t.Fatalf("docs=%d", len(docs))
	}
}

func TestFetch_transferEncodings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != httpclient.UserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			bw := brotli.NewWriter(w)
			bw.Write([]byte(guide))
			bw.Close()
		case "/gzip":
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz(t, guide))
		case "/double.xml.gz":
			// .gz file served with a gzip transfer layer on top.
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz(t, string(gz(t, guide))))
		case "/mislabelled.xml.gz":
			// File layer reported as transfer encoding only.
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz(t, guide))
		}
	}))
	defer srv.Close()

	f := &Fetcher{}
	for _, src := range []Source{
		{URL: srv.URL + "/br"},
		{URL: srv.URL + "/gzip"},
		{URL: srv.URL + "/double.xml.gz", Compressed: true},
		{URL: srv.URL + "/mislabelled.xml.gz", Compressed: true},
	} {
		doc, err := f.Fetch(context.Background(), src)
		if err != nil {
			t.Errorf("%s: %v", src.URL, err)
			continue
		}
		if doc.Text != guide {
			t.Errorf("%s: text = %q", src.URL, doc.Text)
		}
	}
}

func TestFetch_charsetAndBOM(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String(`<?xml version="1.0" encoding="ISO-8859-1"?><tv><channel id="c"><display-name>Música</display-name></channel></tv>`)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/decl":
			w.Header().Set("Content-Type", "text/xml")
			w.Write([]byte(latin1))
		case "/header":
			w.Header().Set("Content-Type", "text/xml; charset=windows-1252")
			w.Write([]byte(strings.Replace(latin1, `encoding="ISO-8859-1"`, "", 1)))
		case "/bom":
			w.Write(append([]byte{0xEF, 0xBB, 0xBF}, guide...))
		case "/bogus":
			w.Header().Set("Content-Type", "text/xml; charset=x-no-such-charset")
			w.Write([]byte(guide))
		}
	}))
	defer srv.Close()

	f := &Fetcher{}
	for _, p := range []string{"/decl", "/header"} {
		doc, err := f.Fetch(context.Background(), Source{URL: srv.URL + p})
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if !strings.Contains(doc.Text, "Música") {
			t.Errorf("%s: not converted to UTF-8: %q", p, doc.Text)
		}
	}
	doc, err := f.Fetch(context.Background(), Source{URL: srv.URL + "/bom"})
	if err != nil || doc.Text != guide {
		t.Errorf("bom: %q, %v", doc.Text, err)
	}
	if _, err := f.Fetch(context.Background(), Source{URL: srv.URL + "/bogus"}); err == nil {
		t.Error("unknown charset should fail the source")
	}
}

func TestFetch_sizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()
	f := &Fetcher{MaxBytes: 1024}
	if _, err := f.Fetch(context.Background(), Source{URL: srv.URL}); err != errTooLarge {
		t.Fatalf("err = %v, want errTooLarge", err)
	}
}

func TestFetch_conditional(t *testing.T) {
	var full, revalidated int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			revalidated++
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full++
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(guide))
	}))
	defer srv.Close()

	f := &Fetcher{Conditional: true}
	src := Source{URL: srv.URL + "/guide.xml"}
	for i := 0; i < 3; i++ {
		doc, err := f.Fetch(context.Background(), src)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if doc.Text != guide {
			t.Fatalf("fetch %d: text=%q", i, doc.Text)
		}
	}
	if full != 1 || revalidated != 2 {
		t.Fatalf("full=%d revalidated=%d want 1/2", full, revalidated)
	}

	// Without Conditional no validator is sent.
	plain := &Fetcher{}
	if _, err := plain.Fetch(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if full != 2 {
		t.Fatalf("full=%d want 2", full)
	}
}

func TestFetch_notModifiedWithoutCachedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()
	f := &Fetcher{Conditional: true}
	if _, err := f.Fetch(context.Background(), Source{URL: srv.URL}); err == nil {
		t.Fatal("304 without a stored document must fail")
	}
}
