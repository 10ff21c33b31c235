package safeurl

import "testing"

func TestIsHTTPOrHTTPS(t *testing.T) {
	tests := []struct {
		url   string
		allow bool
	}{
		{"http://example.com/", true},
		{"https://example.com/path", true},
		{"HTTP://x", true},
		{"HTTPS://x", true},
		{"file:///etc/passwd", false},
		{"ftp://example.com", false},
		{"", false},
		{"not-a-url", false},
		{"javascript:alert(1)", false},
	}
	for _, tt := range tests {
		got := IsHTTPOrHTTPS(tt.url)
		if got != tt.allow {
			t.Errorf("IsHTTPOrHTTPS(%q) = %v, want %v", tt.url, got, tt.allow)
		}
	}
}

func TestRedact(t *testing.T) {
	tests := map[string]string{
		"http://panel.example/player_api.php?username=bob&password=s3cret": "http://panel.example/player_api.php?password=redacted&username=redacted",
		"http://panel.example/live/bob/s3cret/42.ts":                       "http://panel.example/live/redacted/redacted/42.ts",
		"http://u:p@epg.example/guide.xml.gz":                              "http://redacted@epg.example/guide.xml.gz",
		"https://epg.example/guide.xml":                                    "https://epg.example/guide.xml",
	}
	for in, want := range tests {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q)=%q want %q", in, got, want)
		}
	}
}
