package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
)

// maxSitemapFetches bounds how many documents one index may pull in.
const maxSitemapFetches = 20

// googleNewsFetcher reads Google News sitemaps, following sitemap indexes.
type googleNewsFetcher struct {
	client HTTPClient
}

// NewGoogleNewsFetcher builds a Fetcher for google-news providers.
func NewGoogleNewsFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &googleNewsFetcher{client: client}
}

func (f *googleNewsFetcher) ID() string { return ProviderTypeGoogleNews }

// Fetch walks the sitemap tree breadth first and stops once the provider's
// article limit is reached. Each document is fetched at most once.
func (f *googleNewsFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeGoogleNews) {
		return nil, fmt.Errorf("google news fetcher received incompatible provider type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}

	headers := Headers(cfg)
	limit := cfg.Limit()
	queue := []string{cfg.SourceURL}
	visited := map[string]struct{}{}
	var articles []domain.Article

	for len(queue) > 0 && len(articles) < limit && len(visited) < maxSitemapFetches {
		next := queue[0]
		queue = queue[1:]
		if _, ok := visited[next]; ok {
			continue
		}
		visited[next] = struct{}{}

		raw, err := fetchPage(ctx, f.client, next, cfg.ID, headers)
		if err != nil {
			return nil, err
		}
		doc, err := decodeSitemap(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s sitemap %s: %w", cfg.ID, next, err)
		}
		for _, entry := range doc.Entries {
			if art, ok := entry.article(cfg.ID); ok {
				articles = append(articles, art)
			}
		}
		queue = append(queue, doc.children()...)
	}

	if len(articles) == 0 {
		return nil, fmt.Errorf("%s sitemap returned no records", cfg.ID)
	}
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}
