package domain

import (
	"strings"
	"time"
)

// Domain contains core models shared by fetchers, the classifier and publishers.

// Article is a single scraped news item. It is treated as immutable once ingested.
type Article struct {
	ProviderID  string    `json:"provider_id"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	Body        string    `json:"body,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Timestamp returns the publication time, falling back to the fetch time.
func (a Article) Timestamp() time.Time {
	if !a.PublishedAt.IsZero() {
		return a.PublishedAt
	}
	return a.FetchedAt
}

// Summary returns the best short text for display.
func (a Article) Summary() string {
	if s := strings.TrimSpace(a.Description); s != "" {
		return s
	}
	return strings.TrimSpace(a.Body)
}

// Category is a topic tag assigned by keyword match.
type Category string

const (
	CategoryEconomy     Category = "economy"
	CategoryGeopolitics Category = "geopolitics"
	CategoryMarkets     Category = "markets"
)

// AllCategories returns the known categories in canonical order.
func AllCategories() []Category {
	return []Category{CategoryEconomy, CategoryGeopolitics, CategoryMarkets}
}

// ParseCategory resolves a case-insensitive category name.
func ParseCategory(raw string) (Category, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for _, c := range AllCategories() {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}

// ImpactLevel tells whether a story was corroborated by independent sources.
type ImpactLevel string

const (
	ImpactNormal ImpactLevel = "normal"
	ImpactHigh   ImpactLevel = "high"
)

// ParseImpact resolves an impact level name, defaulting to normal.
func ParseImpact(raw string) (ImpactLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ImpactNormal):
		return ImpactNormal, true
	case string(ImpactHigh):
		return ImpactHigh, true
	default:
		return "", false
	}
}

// AtLeast reports whether l is at or above min.
func (l ImpactLevel) AtLeast(min ImpactLevel) bool {
	if min == ImpactHigh {
		return l == ImpactHigh
	}
	return true
}
