// Package epgsource downloads XMLTV documents from the configured EPG sources.
//
// Every source is attempted exactly once per FetchAll call. A source that
// fails in any way (transport, status, decompression, charset) is logged and
// left out of the result; the caller merges whatever came back.
package epgsource

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"github.com/snapetech/epgbridge/internal/httpclient"
	"github.com/snapetech/epgbridge/internal/logging"
	"github.com/snapetech/epgbridge/internal/metrics"
	"github.com/snapetech/epgbridge/internal/safeurl"
)

// DefaultMaxBytes caps a decoded document.
const DefaultMaxBytes int64 = 512 << 20

var errTooLarge = errors.New("document exceeds size cap")

// Source is one configured EPG feed.
type Source struct {
	URL        string
	Compressed bool // file-level gzip (.xml.gz)
}

// Document is the decoded UTF-8 text of one source.
type Document struct {
	Source Source
	Text   string
}

type Fetcher struct {
	Sources  []Source
	Client   *http.Client              // nil: httpclient.Default()
	Hosts    *httpclient.HostSemaphore // nil: no per-host limit
	MaxBytes int64                     // <= 0: DefaultMaxBytes
	Log      logrus.FieldLogger
	Metrics  *metrics.Metrics

	// Conditional sends If-None-Match / If-Modified-Since from the previous
	// successful fetch; a 304 reuses that document.
	Conditional bool

	cond validators
}

// FetchAll downloads every source concurrently and returns the successful
// documents in configured order.
func (f *Fetcher) FetchAll(ctx context.Context) []Document {
	results := make([]*Document, len(f.Sources))
	var wg sync.WaitGroup
	for i, src := range f.Sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			doc, err := f.Fetch(ctx, src)
			f.Metrics.SourceFetch(err == nil)
			if err != nil {
				f.log().WithField("source", safeurl.Redact(src.URL)).WithError(err).Warn("epg source skipped")
				return
			}
			results[i] = &doc
		}(i, src)
	}
	wg.Wait()

	docs := make([]Document, 0, len(results))
	for _, d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs
}

// Fetch downloads and decodes a single source.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Document, error) {
	release, err := f.Hosts.Acquire(ctx, src.URL)
	if err != nil {
		return Document{}, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Document{}, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	// Setting Accept-Encoding turns off the transport's transparent gzip, so
	// both transfer encodings are decoded here.
	req.Header.Set("Accept-Encoding", "gzip, br")
	if f.Conditional {
		f.cond.apply(req)
	}

	client := f.Client
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified && f.Conditional {
		if doc, ok := f.cond.notModified(req.URL.String()); ok {
			f.log().WithField("source", safeurl.Redact(src.URL)).Debug("epg source not modified")
			return doc, nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Document{}, fmt.Errorf("status %s", resp.Status)
	}

	body, err := f.decode(resp, src)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Source: src, Text: body}
	if f.Conditional {
		f.cond.remember(req.URL.String(), resp, doc)
	}
	return doc, nil
}

func (f *Fetcher) decode(resp *http.Response, src Source) (string, error) {
	var r io.Reader = resp.Body
	transferGzip := false
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "br":
		r = brotli.NewReader(r)
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return "", fmt.Errorf("content-encoding gzip: %w", err)
		}
		defer zr.Close()
		r = zr
		transferGzip = true
	default:
		return "", fmt.Errorf("unsupported content-encoding %q", resp.Header.Get("Content-Encoding"))
	}

	data, err := readCapped(r, f.maxBytes())
	if err != nil {
		return "", err
	}

	// Some servers label .xml.gz with Content-Encoding: gzip, in which case
	// the file layer is already gone.
	if src.Compressed && !(transferGzip && !isGzip(data)) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("gunzip: %w", err)
		}
		data, err = readCapped(zr, f.maxBytes())
		zr.Close()
		if err != nil {
			return "", fmt.Errorf("gunzip: %w", err)
		}
	}

	if label := charsetLabel(resp.Header.Get("Content-Type"), data); label != "" {
		cr, err := charset.NewReaderLabel(label, bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("charset %q: %w", label, err)
		}
		if data, err = io.ReadAll(cr); err != nil {
			return "", fmt.Errorf("charset %q: %w", label, err)
		}
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

func (f *Fetcher) maxBytes() int64 {
	if f.MaxBytes > 0 {
		return f.MaxBytes
	}
	return DefaultMaxBytes
}

func (f *Fetcher) log() logrus.FieldLogger {
	return logging.OrDiscard(f.Log)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var xmlEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*?encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// charsetLabel returns the declared non-UTF-8 charset of data, or "".
// The Content-Type parameter wins over the XML declaration.
func charsetLabel(contentType string, data []byte) string {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		head := bytes.TrimPrefix(data, utf8BOM)
		if len(head) > 256 {
			head = head[:256]
		}
		if m := xmlEncoding.FindSubmatch(head); m != nil {
			label = string(m[1])
		}
	}
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return ""
	}
	return label
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func readCapped(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, errTooLarge
	}
	return data, nil
}
