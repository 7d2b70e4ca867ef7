package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/internal/logger"
	"github.com/Adda-Baaj/trendwatch/pkg/httpclient"
	"github.com/Adda-Baaj/trendwatch/pkg/providers"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	maxHTMLBodyBytes  = 1 << 20 // 1 MiB
	maxArticleWorkers = 10
	maxBodyParagraphs = 5
	maxBodyRunes      = 500
)

// DefaultContentSelectors are tried in order when a provider does not list its own.
var DefaultContentSelectors = []string{
	"article p",
	".content p",
	".article-content p",
	".post-content p",
	"main p",
}

// Scraper visits article pages and fills in body text and page metadata.
type Scraper struct {
	client httpclient.Client
	log    logger.Logger
}

// NewScraper creates a new Scraper with the given HTTP client and logger.
func NewScraper(client httpclient.Client, log logger.Logger) *Scraper {
	if client == nil {
		client = providers.DefaultHTTPClient()
	}
	return &Scraper{client: client, log: logger.Ensure(log)}
}

// Enrich visits every article page of one provider. Pages that fail keep the
// listing record unchanged, so the result always has len(articles) entries in
// the original order.
func (s *Scraper) Enrich(ctx context.Context, cfg providers.Provider, articles []domain.Article) []domain.Article {
	out := make([]domain.Article, len(articles))
	copy(out, articles)

	if len(articles) == 0 {
		return out
	}

	var limiter <-chan time.Time
	if delay := cfg.RequestDelay(); delay > 0 {
		ticker := time.NewTicker(delay)
		defer ticker.Stop()
		limiter = ticker.C
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup
	for workerID := range min(len(articles), maxArticleWorkers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.articleWorker(ctx, cfg, limiter, jobCh, out, workerID)
		}()
	}

feed:
	for idx := range articles {
		select {
		case <-ctx.Done():
			break feed
		case jobCh <- idx:
		}
	}
	close(jobCh)
	wg.Wait()

	return out
}

func (s *Scraper) articleWorker(
	ctx context.Context,
	cfg providers.Provider,
	limiter <-chan time.Time,
	jobCh <-chan int,
	out []domain.Article,
	workerID int,
) {
	for idx := range jobCh {
		if limiter != nil {
			select {
			case <-ctx.Done():
				return
			case <-limiter:
			}
		}
		if ctx.Err() != nil {
			return
		}

		art := out[idx]
		enriched, err := s.fetchAndParse(ctx, cfg, art, workerID)
		if err != nil {
			s.log.WarnObj("article page scrape failed", "scrape_error", map[string]any{
				"worker_id":   workerID,
				"provider_id": cfg.ID,
				"url":         art.URL,
				"error":       err,
			})
			continue
		}
		out[idx] = enriched
	}
}

func (s *Scraper) fetchAndParse(ctx context.Context, cfg providers.Provider, art domain.Article, workerID int) (domain.Article, error) {
	s.log.DebugObj("scraping article page", "scrape_start", map[string]any{
		"worker_id":   workerID,
		"provider_id": cfg.ID,
		"url":         art.URL,
	})

	resp, err := s.client.Get(ctx, art.URL, providers.Headers(cfg))
	if err != nil {
		return art, fmt.Errorf("http fetch: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return art, fmt.Errorf("status %d body: %s", resp.StatusCode(), snippet)
	}

	body := resp.Body()
	if len(body) > maxHTMLBodyBytes {
		s.log.InfoObj("html body truncated", "truncation", map[string]any{
			"provider_id": cfg.ID,
			"url":         art.URL,
			"original":    len(body),
			"kept":        maxHTMLBodyBytes,
		})
		body = body[:maxHTMLBodyBytes]
	}

	selectors := cfg.ContentSelectors
	if len(selectors) == 0 {
		selectors = DefaultContentSelectors
	}
	page, err := parsePage(body, selectors)
	if err != nil {
		return art, err
	}
	if page.Body == "" {
		page.Body = readableText(body, art.URL)
	}

	updated := art
	if updated.Title == "" {
		updated.Title = page.Title
	}
	if updated.Description == "" {
		updated.Description = page.Description
	}
	if updated.ImageURL == "" && page.ImageURL != "" {
		updated.ImageURL = resolveURL(page.ImageURL, art.URL)
	}
	if page.Body != "" {
		updated.Body = truncateRunes(page.Body, maxBodyRunes)
	}
	return updated, nil
}

// pageContent holds what one article page contributes.
type pageContent struct {
	Title       string
	Description string
	ImageURL    string
	Body        string
}

// parsePage reads page metadata and the opening paragraphs of the first
// content selector that matches anything.
func parsePage(body []byte, selectors []string) (pageContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageContent{}, fmt.Errorf("parse html: %w", err)
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	pc := pageContent{
		Title: firstNonEmpty(
			extract(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			extract(`meta[property="og:description"]`),
			extract(`meta[name="description"]`),
		),
		ImageURL: extract(`meta[property="og:image"]`),
	}

	for _, sel := range selectors {
		paras := doc.Find(sel)
		if paras.Length() == 0 {
			continue
		}
		var parts []string
		paras.EachWithBreak(func(_ int, p *goquery.Selection) bool {
			if text := collapse(p.Text()); text != "" {
				parts = append(parts, text)
			}
			return len(parts) < maxBodyParagraphs
		})
		pc.Body = strings.Join(parts, " ")
		break
	}
	return pc, nil
}

// readableText runs the readability extractor over the page and returns its
// plain text, or "" when nothing usable comes out.
func readableText(body []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	art, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return ""
	}
	return collapse(art.TextContent)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// firstNonEmpty returns the first non-empty string from the given values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(raw, base string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return baseURL.ResolveReference(parsed).String()
}
