package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/trendwatch/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// rssFetcher implements Fetcher for RSS and Atom feeds.
type rssFetcher struct {
	client HTTPClient
}

// NewRSSFetcher builds a Fetcher for RSS/Atom providers.
func NewRSSFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &rssFetcher{client: client}
}

// ID returns the provider type handled by the RSS fetcher.
func (f *rssFetcher) ID() string {
	return ProviderTypeRSS
}

// Fetch downloads and parses the feed.
func (f *rssFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeRSS) {
		return nil, fmt.Errorf("rss fetcher received incompatible provider type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}

	resp, err := f.client.Get(ctx, cfg.SourceURL, Headers(cfg))
	if err != nil {
		return nil, fmt.Errorf("fetch %s feed: %w", cfg.ID, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("%s feed returned status %d body: %s", cfg.ID, resp.StatusCode(), bodySnippet(resp.Body()))
	}

	feed, err := gofeed.NewParser().ParseString(string(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("decode %s feed: %w", cfg.ID, err)
	}

	articles := buildArticlesFromFeed(cfg, feed)
	if len(articles) == 0 {
		return nil, fmt.Errorf("%s feed returned no records", cfg.ID)
	}
	return articles, nil
}

// buildArticlesFromFeed converts feed items, keeping at most cfg.Limit() entries.
func buildArticlesFromFeed(cfg Provider, feed *gofeed.Feed) []domain.Article {
	limit := cfg.Limit()
	articles := make([]domain.Article, 0, min(len(feed.Items), limit))
	for _, item := range feed.Items {
		if len(articles) >= limit {
			break
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}

		art := domain.Article{
			ProviderID:  cfg.ID,
			ID:          articleID(link),
			Title:       strings.TrimSpace(item.Title),
			URL:         link,
			Description: plainText(item.Description),
			Keywords:    item.Categories,
		}
		if art.Description == "" {
			art.Description = plainText(item.Content)
		}
		if item.PublishedParsed != nil {
			art.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			art.PublishedAt = *item.UpdatedParsed
		}
		if item.Image != nil {
			art.ImageURL = item.Image.URL
		}
		articles = append(articles, art)
	}
	return articles
}

// plainText strips markup from a feed HTML fragment.
func plainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
