package providers

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"encoding/xml"
	"strings"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
)

// articleID derives a stable article id from its link.
func articleID(link string) string {
	sum := sha1.Sum([]byte(link))
	return hex.EncodeToString(sum[:])
}

// bodySnippet shortens an error response body for messages.
func bodySnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	switch {
	case s == "":
		return "<empty>"
	case len(s) > maxLen:
		return s[:maxLen] + "..."
	default:
		return s
	}
}

var timestampLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.DateTime,
	time.DateOnly,
}

// parseTimestamp accepts the date formats news sitemaps and pages use in
// practice. Unparseable input yields the zero time.
func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// sitemapDoc decodes both a news urlset and a sitemap index; element names
// are matched by local name so the news and image namespaces need no prefix.
type sitemapDoc struct {
	Entries []sitemapEntry `xml:"url"`
	Nested  []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc  string `xml:"loc"`
	News struct {
		PublicationDate string `xml:"publication_date"`
		Title           string `xml:"title"`
		Keywords        string `xml:"keywords"`
	} `xml:"news"`
	Images []struct {
		Loc   string `xml:"loc"`
		Title string `xml:"title"`
	} `xml:"image"`
}

func decodeSitemap(data []byte) (sitemapDoc, error) {
	var doc sitemapDoc
	err := xml.Unmarshal(data, &doc)
	return doc, err
}

// children lists the nested sitemap locations of an index document.
func (d sitemapDoc) children() []string {
	out := make([]string, 0, len(d.Nested))
	for _, n := range d.Nested {
		if loc := strings.TrimSpace(n.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	return out
}

// article converts an entry; entries without a location are skipped.
func (e sitemapEntry) article(providerID string) (domain.Article, bool) {
	loc := strings.TrimSpace(e.Loc)
	if loc == "" {
		return domain.Article{}, false
	}
	art := domain.Article{
		ProviderID:  providerID,
		ID:          articleID(loc),
		Title:       strings.TrimSpace(e.News.Title),
		URL:         loc,
		Keywords:    splitKeywords(e.News.Keywords),
		PublishedAt: parseTimestamp(e.News.PublicationDate),
	}
	for _, img := range e.Images {
		if u := strings.TrimSpace(img.Loc); u != "" {
			art.ImageURL = u
			if art.Title == "" {
				art.Title = strings.TrimSpace(img.Title)
			}
			break
		}
	}
	return art, true
}

func splitKeywords(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if kw := strings.TrimSpace(part); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
