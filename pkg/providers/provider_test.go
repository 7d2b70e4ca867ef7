package providers

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}
	if got := len(reg.All()); got != 4 {
		t.Fatalf("expected 4 providers, got %d", got)
	}
	enabled := reg.Enabled()
	if len(enabled) != 3 {
		t.Fatalf("expected 3 enabled providers, got %d", len(enabled))
	}
	g1, ok := reg.ByID("G1")
	if !ok {
		t.Fatal("g1 provider missing")
	}
	if g1.Type != ProviderTypeHTML || g1.Selector != "article" {
		t.Errorf("g1 = %+v", g1)
	}
	if g1.RequestDelay() != 500*time.Millisecond {
		t.Errorf("delay = %v", g1.RequestDelay())
	}
}

func TestParseRegistryValidation(t *testing.T) {
	cases := map[string]string{
		"empty":        `providers: []`,
		"missing id":   "providers:\n  - type: html\n    source_url: https://a.example.com\n",
		"bad type":     "providers:\n  - id: a\n    type: ftp\n    source_url: https://a.example.com\n",
		"bad scheme":   "providers:\n  - id: a\n    type: html\n    source_url: ftp://a.example.com\n",
		"no url":       "providers:\n  - id: a\n    type: rss\n",
		"duplicate id": "providers:\n  - id: a\n    type: rss\n    source_url: https://a.example.com\n  - id: A\n    type: rss\n    source_url: https://b.example.com\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRegistry([]byte(raw), ".yaml"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadRegistryJSONWithEnv(t *testing.T) {
	t.Setenv("TW_TEST_FEED", "https://feeds.example.com/rss")
	path := filepath.Join(t.TempDir(), "providers.json")
	raw := `{"providers":[{"id":" Feed ","type":"RSS","source_url":"${TW_TEST_FEED}","headers":{"X-Key":" v ","":"drop"}}]}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, ok := reg.ByID("feed")
	if !ok {
		t.Fatal("feed provider missing")
	}
	if p.SourceURL != "https://feeds.example.com/rss" || p.Type != ProviderTypeRSS {
		t.Errorf("provider = %+v", p)
	}
	if len(p.Headers) != 1 || p.Headers["X-Key"] != "v" {
		t.Errorf("headers = %v", p.Headers)
	}
	if p.Limit() != defaultMaxArticles {
		t.Errorf("limit = %d", p.Limit())
	}
}

func TestHeadersIncludesUserAgent(t *testing.T) {
	h := Headers(Provider{UserAgent: "bot/1", Headers: map[string]string{"Accept": "text/html"}})
	if h["User-Agent"] != "bot/1" || h["Accept"] != "text/html" {
		t.Fatalf("headers = %v", h)
	}
}
