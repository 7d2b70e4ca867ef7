package providers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/trendwatch/pkg/httpclient"
)

type fetcherRegistry struct {
	fetchers map[string]Fetcher
	mu       sync.RWMutex
}

// NewFetcherRegistry builds a registry for the provided fetcher implementations,
// keyed by the provider type each one handles.
func NewFetcherRegistry(fetchers ...Fetcher) FetcherRegistry {
	reg := &fetcherRegistry{
		fetchers: make(map[string]Fetcher, len(fetchers)),
	}

	for _, f := range fetchers {
		if f == nil {
			continue
		}
		reg.fetchers[strings.ToLower(strings.TrimSpace(f.ID()))] = f
	}

	return reg
}

// FetcherFor selects the fetcher for the given provider based on its type.
func (r *fetcherRegistry) FetcherFor(cfg Provider) (Fetcher, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("provider %q has no type configured", cfg.ID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(cfg.Type)
	if f, ok := r.fetchers[key]; ok {
		return f, nil
	}

	return nil, fmt.Errorf("no fetcher registered for provider type %q", cfg.Type)
}

// DefaultHTTPClient returns a tuned client for provider fetchers.
func DefaultHTTPClient() HTTPClient { return httpclient.NewRestyClient(15 * time.Second) }

// DefaultFetcherRegistry wires up the known provider fetchers.
func DefaultFetcherRegistry(client HTTPClient) FetcherRegistry {
	if client == nil {
		client = DefaultHTTPClient()
	}

	return NewFetcherRegistry(
		NewHTMLFetcher(client),
		NewGoogleNewsFetcher(client),
		NewRSSFetcher(client),
	)
}
