// Package xtream talks to an upstream Xtream Codes panel (player_api.php).
package xtream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapetech/epgbridge/internal/catalog"
	"github.com/snapetech/epgbridge/internal/httpclient"
	"github.com/snapetech/epgbridge/internal/safeurl"
)

// ErrNoCredentials is returned when username or password is empty.
var ErrNoCredentials = errors.New("xtream: username and password required")

// maxBody caps a catalog response; large panels list tens of thousands of streams.
const maxBody = 256 << 20

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) valid() bool {
	return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.Password) != ""
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *rate.Limiter          // nil: unpaced
	Retry   httpclient.RetryPolicy // zero value: single attempt
}

// NewClient returns a client paced at rps requests per second.
func NewClient(baseURL string, timeout time.Duration, rps float64, burst int) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    httpclient.WithTimeout(timeout),
	}
	if rps > 0 {
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return c
}

// Authenticate returns the panel's user_info/server_info document verbatim.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (json.RawMessage, error) {
	body, err := c.get(ctx, creds, "", nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("xtream auth: response is not JSON")
	}
	return json.RawMessage(body), nil
}

func (c *Client) LiveCategories(ctx context.Context, creds Credentials) ([]catalog.Category, error) {
	body, err := c.get(ctx, creds, "get_live_categories", nil)
	if err != nil {
		return nil, err
	}
	var out []catalog.Category
	if err := decodeList(body, &out); err != nil {
		return nil, fmt.Errorf("get_live_categories: %w", err)
	}
	return out, nil
}

// LiveStreams lists live streams, all of them when categoryID is empty.
func (c *Client) LiveStreams(ctx context.Context, creds Credentials, categoryID string) ([]catalog.Stream, error) {
	var extra url.Values
	if categoryID != "" {
		extra = url.Values{"category_id": {categoryID}}
	}
	body, err := c.get(ctx, creds, "get_live_streams", extra)
	if err != nil {
		return nil, err
	}
	var out []catalog.Stream
	if err := decodeList(body, &out); err != nil {
		return nil, fmt.Errorf("get_live_streams: %w", err)
	}
	return out, nil
}

// StreamURL is the upstream URL of a live stream, e.g. ".../live/u/p/42.ts".
func (c *Client) StreamURL(creds Credentials, stream string) string {
	return c.BaseURL + "/live/" + url.PathEscape(creds.Username) + "/" + url.PathEscape(creds.Password) + "/" + url.PathEscape(stream)
}

// XMLTVURL is the panel's own guide export.
func (c *Client) XMLTVURL(creds Credentials) string {
	q := url.Values{"username": {creds.Username}, "password": {creds.Password}}
	return c.BaseURL + "/xmltv.php?" + q.Encode()
}

func (c *Client) get(ctx context.Context, creds Credentials, action string, extra url.Values) ([]byte, error) {
	if !creds.valid() {
		return nil, ErrNoCredentials
	}
	q := url.Values{"username": {creds.Username}, "password": {creds.Password}}
	if action != "" {
		q.Set("action", action)
	}
	for k, v := range extra {
		q[k] = v
	}
	u := c.BaseURL + "/player_api.php?" + q.Encode()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := httpclient.DoWithRetry(ctx, c.HTTP, req, c.Retry)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", safeurl.Redact(u), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", safeurl.Redact(u), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: %s", safeurl.Redact(u), resp.Status)
	}
	return body, nil
}

// decodeList accepts a JSON array; null or an empty body is an empty list.
// Panels answer bad credentials with an object, which is an error here.
func decodeList(body []byte, v any) error {
	b := bytes.TrimSpace(body)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] != '[' {
		return fmt.Errorf("expected a JSON array, got %.40q", b)
	}
	return json.Unmarshal(b, v)
}
