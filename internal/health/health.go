// Package health implements the reachability checks behind "epgbridge check".
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapetech/epgbridge/internal/httpclient"
	"github.com/snapetech/epgbridge/internal/safeurl"
	"github.com/snapetech/epgbridge/internal/xtream"
)

// Result is the outcome of one named check.
type Result struct {
	Name string
	Err  error
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("FAIL %s: %v", r.Name, r.Err)
	}
	return "ok   " + r.Name
}

// Failed reports whether any result carries an error.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// CheckSource fetches an EPG source URL and discards the body. Returns nil
// on a 2xx response.
func CheckSource(ctx context.Context, sourceURL string) error {
	if sourceURL == "" {
		return errors.New("no source URL configured")
	}
	// Some servers reject HEAD; use GET and stop reading early.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := httpclient.WithTimeout(15 * time.Second).Do(req)
	if err != nil {
		return fmt.Errorf("source %s unreachable: %w", safeurl.Redact(sourceURL), err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("source %s returned HTTP %d", safeurl.Redact(sourceURL), resp.StatusCode)
	}
	return nil
}

// CheckPanel authenticates against an Xtream panel. Without credentials only
// the panel's reachability is checked.
func CheckPanel(ctx context.Context, panel *xtream.Client, creds xtream.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return CheckSource(ctx, panel.BaseURL+"/player_api.php")
	}
	_, err := panel.Authenticate(ctx, creds)
	return err
}

// CheckEndpoints hits /healthz and /xmltv.php at baseURL and returns the first error or nil.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := httpclient.WithTimeout(30 * time.Second)
	for _, ep := range []struct{ method, path string }{
		{http.MethodGet, "/healthz"},
		{http.MethodHead, "/xmltv.php"},
	} {
		req, err := http.NewRequestWithContext(ctx, ep.method, baseURL+ep.path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", httpclient.UserAgent)
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", ep.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", ep.path, resp.StatusCode)
		}
	}
	return nil
}
