package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return (s == "http" || s == "https") && parsed.Host != ""
}

const mask = "redacted"

// credentialKeys are query parameters that carry provider credentials.
var credentialKeys = []string{"username", "password", "user", "pass", "token"}

// Redact returns u with userinfo and credential query values masked, for logs.
// Xtream paths (/live/<user>/<pass>/<id>.ts) are masked too.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "<invalid url>"
	}
	if parsed.User != nil {
		parsed.User = url.User(mask)
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		changed := false
		for _, k := range credentialKeys {
			if q.Has(k) {
				q.Set(k, mask)
				changed = true
			}
		}
		if changed {
			parsed.RawQuery = q.Encode()
		}
	}
	parts := strings.Split(parsed.Path, "/")
	for i, p := range parts {
		if (p == "live" || p == "movie" || p == "series") && i+3 < len(parts) {
			parts[i+1], parts[i+2] = mask, mask
			break
		}
	}
	parsed.Path = strings.Join(parts, "/")
	return parsed.String()
}
