package cache

import (
	"regexp"
	"testing"
	"time"
)

func TestKeyFormat(t *testing.T) {
	keyPattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}/[a-z0-9-]+_page_\d{3}_[0-9a-f]{8}\.(pdf|html)$`)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		slug   string
		page   int
		url    string
		format string
	}{
		{"pdf page", "smyth-county", 1, "https://swvatoday.com/eedition/page1.pdf", "pdf"},
		{"html page", "smyth-county", 12, "https://swvatoday.com/eedition/page12", "html"},
		{"declared pdf without extension", "bristol", 3, "https://example.com/p/3", "pdf"},
		{"three digit page", "smyth-county", 104, "https://example.com/p/104", "html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Key(day, tt.slug, tt.page, tt.url, tt.format)
			if !keyPattern.MatchString(key) {
				t.Errorf("key %q does not match required shape", key)
			}
		})
	}

	// Same URL always yields the same key.
	k1 := Key(day, "smyth-county", 1, "https://example.com/a", "html")
	k2 := Key(day, "smyth-county", 1, "https://example.com/a", "html")
	if k1 != k2 {
		t.Errorf("key not deterministic: %q vs %q", k1, k2)
	}
	if k1 == Key(day, "smyth-county", 1, "https://example.com/b", "html") {
		t.Error("different URLs should produce different keys")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		url    string
		format string
		want   string
	}{
		{"https://example.com/page.pdf", "html", ".pdf"},
		{"https://example.com/page.PDF", "html", ".pdf"},
		{"https://example.com/page", "pdf", ".pdf"},
		{"https://example.com/page", "html", ".html"},
		{"https://example.com/page.pdf?x=1", "html", ".pdf"},
		{"not a url at all", "", ".html"},
	}
	for _, tt := range tests {
		if got := ExtensionFor(tt.url, tt.format); got != tt.want {
			t.Errorf("ExtensionFor(%q, %q) = %q, want %q", tt.url, tt.format, got, tt.want)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantHost   string
		wantSecure bool
	}{
		{"explicit http", "http://minio.example.com:9000", "minio.example.com:9000", false},
		{"explicit https", "https://minio.example.com", "minio.example.com:9000", true},
		{"k8s service", "minio.storage.svc:9000", "minio.storage.svc:9000", false},
		{"k8s cluster local", "minio.storage.svc.cluster.local", "minio.storage.svc.cluster.local:80", false},
		{"localhost", "localhost:9000", "localhost:9000", false},
		{"lan host", "nas.lan", "nas.lan:80", false},
		{"public host no port", "minio.example.com", "minio.example.com:9000", true},
		{"scheme overrides heuristic", "https://localhost:9443", "localhost:9443", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, secure := ParseEndpoint(tt.raw)
			if host != tt.wantHost || secure != tt.wantSecure {
				t.Errorf("ParseEndpoint(%q) = (%q, %v), want (%q, %v)",
					tt.raw, host, secure, tt.wantHost, tt.wantSecure)
			}
		})
	}
}

func TestHashContent(t *testing.T) {
	h := HashContent([]byte("hello"))
	if len(h) != 64 {
		t.Errorf("sha256 hex length = %d, want 64", len(h))
	}
	if h != HashContent([]byte("hello")) {
		t.Error("hash should be deterministic")
	}
}
