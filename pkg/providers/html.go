package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Adda-Baaj/trendwatch/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

const minTitleRunes = 10

// htmlFetcher scrapes a section front page: one article record per element
// matching the provider selector.
type htmlFetcher struct {
	client HTTPClient
}

// NewHTMLFetcher builds a Fetcher for HTML listing pages.
func NewHTMLFetcher(client HTTPClient) Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &htmlFetcher{client: client}
}

// ID returns the provider type handled by the HTML fetcher.
func (f *htmlFetcher) ID() string {
	return ProviderTypeHTML
}

// Fetch downloads the listing page and extracts article links.
func (f *htmlFetcher) Fetch(ctx context.Context, cfg Provider) ([]domain.Article, error) {
	if !strings.EqualFold(cfg.Type, ProviderTypeHTML) {
		return nil, fmt.Errorf("html fetcher received incompatible provider type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.SourceURL) == "" {
		return nil, fmt.Errorf("provider %q source_url is empty", cfg.ID)
	}

	raw, err := fetchPage(ctx, f.client, cfg.SourceURL, cfg.ID, Headers(cfg))
	if err != nil {
		return nil, err
	}

	articles, err := parseListing(cfg, raw)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%s listing returned no records", cfg.ID)
	}
	return articles, nil
}

// parseListing extracts articles from a listing page.
func parseListing(cfg Provider, raw []byte) ([]domain.Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s listing: %w", cfg.ID, err)
	}

	selector := cfg.Selector
	if selector == "" {
		selector = defaultSelector
	}
	limit := cfg.Limit()

	var articles []domain.Article
	seen := make(map[string]struct{})
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.Join(strings.Fields(sel.Find("h1, h2, h3, h4").First().Text()), " ")
		if utf8.RuneCountInString(title) < minTitleRunes {
			return true
		}

		href, ok := sel.Find("a[href]").First().Attr("href")
		if !ok {
			if href, ok = sel.Attr("href"); !ok {
				return true
			}
		}
		link := resolveLink(strings.TrimSpace(href), cfg.SourceURL)
		if link == "" {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}

		art := domain.Article{
			ProviderID: cfg.ID,
			ID:         articleID(link),
			Title:      title,
			URL:        link,
		}
		if dt, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
			art.PublishedAt = parseTimestamp(dt)
		}
		if summary := strings.TrimSpace(sel.Find("p").First().Text()); summary != "" {
			art.Description = strings.Join(strings.Fields(summary), " ")
		}

		articles = append(articles, art)
		return len(articles) < limit
	})
	return articles, nil
}

// resolveLink returns an absolute http(s) URL for href, or "" when it cannot be built.
func resolveLink(href, base string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

// fetchPage retrieves a listing or sitemap document; non-2xx answers are errors.
func fetchPage(ctx context.Context, client HTTPClient, pageURL, providerID string, headers map[string]string) ([]byte, error) {
	resp, err := client.Get(ctx, pageURL, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %s: %w", providerID, pageURL, err)
	}
	body := resp.Body()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("%s page %s returned status %d body: %s", providerID, pageURL, resp.StatusCode(), bodySnippet(body))
	}
	return body, nil
}
