package providers

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/pkg/httpclient"

	"gopkg.in/yaml.v3"
)

const (
	// Supported provider types.
	ProviderTypeHTML       = "html"
	ProviderTypeGoogleNews = "google-news"
	ProviderTypeRSS        = "rss"

	defaultMaxArticles = 10
	defaultSelector    = "article"
)

//go:embed default_providers.yaml
var defaultProvidersYAML []byte

// HTTPClient is the client used by fetchers.
type HTTPClient = httpclient.Client

// Fetcher turns a provider's listing into raw article records.
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, cfg Provider) ([]domain.Article, error)
}

// FetcherRegistry resolves the fetcher for a provider.
type FetcherRegistry interface {
	FetcherFor(cfg Provider) (Fetcher, error)
}

// Provider describes one news source.
type Provider struct {
	ID               string            `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	Type             string            `json:"type" yaml:"type"`
	SourceURL        string            `json:"source_url" yaml:"source_url"`
	Selector         string            `json:"selector" yaml:"selector"`
	ContentSelectors []string          `json:"content_selectors" yaml:"content_selectors"`
	MaxArticles      int               `json:"max_articles" yaml:"max_articles"`
	RequestDelayMs   int               `json:"request_delay_ms" yaml:"request_delay_ms"`
	UserAgent        string            `json:"user_agent" yaml:"user_agent"`
	Headers          map[string]string `json:"headers" yaml:"headers"`
	Enabled          *bool             `json:"enabled" yaml:"enabled"`
}

// RequestDelay is the minimum spacing between page requests to this provider.
func (p Provider) RequestDelay() time.Duration {
	if p.RequestDelayMs <= 0 {
		return 0
	}
	return time.Duration(p.RequestDelayMs) * time.Millisecond
}

// EnabledValue returns enabled flag defaulting to true.
func (p Provider) EnabledValue() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// Limit returns the maximum number of listing entries to keep.
func (p Provider) Limit() int {
	if p.MaxArticles <= 0 {
		return defaultMaxArticles
	}
	return p.MaxArticles
}

// Headers returns the request headers for the provider.
func Headers(cfg Provider) map[string]string {
	out := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		out[k] = v
	}
	if cfg.UserAgent != "" {
		out["User-Agent"] = cfg.UserAgent
	}
	return out
}

type configFile struct {
	Providers []Provider `json:"providers" yaml:"providers"`
}

// ConfigRegistry holds provider definitions loaded from config files.
type ConfigRegistry struct {
	mu        sync.RWMutex
	providers []Provider
	idx       map[string]Provider
}

// LoadRegistry loads providers from a YAML/JSON file. An empty path yields the built-in list.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRegistry()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open providers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseRegistry(raw, filepath.Ext(path))
}

// DefaultRegistry returns the built-in provider list.
func DefaultRegistry() (*ConfigRegistry, error) {
	return ParseRegistry(defaultProvidersYAML, ".yaml")
}

// ParseRegistry decodes provider definitions, expanding ${ENV} references.
func ParseRegistry(raw []byte, ext string) (*ConfigRegistry, error) {
	expanded := []byte(os.ExpandEnv(string(raw)))

	var file configFile
	var err error
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case ".json":
		err = json.Unmarshal(expanded, &file)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(expanded, &file)
	default:
		return nil, fmt.Errorf("providers file format %q not recognized (expected YAML or JSON)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, errors.New("providers file contains no providers entries")
	}

	reg := &ConfigRegistry{
		providers: make([]Provider, 0, len(file.Providers)),
		idx:       make(map[string]Provider, len(file.Providers)),
	}
	for i, p := range file.Providers {
		p = sanitizeProvider(p)
		if err := validateProvider(p); err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		if _, exists := reg.idx[p.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		reg.providers = append(reg.providers, p)
		reg.idx[p.ID] = p
	}
	return reg, nil
}

func sanitizeProvider(p Provider) Provider {
	p.ID = strings.ToLower(strings.TrimSpace(p.ID))
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = p.ID
	}
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.SourceURL = strings.TrimSpace(p.SourceURL)
	p.Selector = strings.TrimSpace(p.Selector)
	if p.Type == ProviderTypeHTML && p.Selector == "" {
		p.Selector = defaultSelector
	}
	p.UserAgent = strings.TrimSpace(p.UserAgent)

	var sels []string
	for _, s := range p.ContentSelectors {
		if s = strings.TrimSpace(s); s != "" {
			sels = append(sels, s)
		}
	}
	p.ContentSelectors = sels

	if len(p.Headers) > 0 {
		h := make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				h[k] = v
			}
		}
		p.Headers = h
	}
	return p
}

func validateProvider(p Provider) error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	switch p.Type {
	case ProviderTypeHTML, ProviderTypeGoogleNews, ProviderTypeRSS:
	case "":
		return fmt.Errorf("type is required for provider %q", p.ID)
	default:
		return fmt.Errorf("type %q not supported for provider %q", p.Type, p.ID)
	}
	if p.SourceURL == "" {
		return fmt.Errorf("source_url is required for provider %q", p.ID)
	}
	u, err := url.Parse(p.SourceURL)
	if err != nil {
		return fmt.Errorf("provider %q: invalid source_url: %w", p.ID, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider %q: source_url scheme must be http or https, got %q", p.ID, u.Scheme)
	}
	if p.MaxArticles < 0 || p.RequestDelayMs < 0 {
		return fmt.Errorf("provider %q: max_articles and request_delay_ms must not be negative", p.ID)
	}
	return nil
}

// ByID returns the provider config by id.
func (r *ConfigRegistry) ByID(id string) (Provider, bool) {
	if r == nil {
		return Provider{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.idx[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// All returns all configured providers.
func (r *ConfigRegistry) All() []Provider {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Enabled returns providers that are enabled.
func (r *ConfigRegistry) Enabled() []Provider {
	var out []Provider
	for _, p := range r.All() {
		if p.EnabledValue() {
			out = append(out, p)
		}
	}
	return out
}
