// Package relevance decides which scraped articles are worth an alert: keyword
// categories, deduplication against history and cross-source impact.
package relevance

import (
	"strings"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
)

// Classify returns the categories whose keywords occur in the article's title,
// description or body, compared case-insensitively and without diacritics.
// Articles with no usable text match nothing.
func Classify(article domain.Article, table KeywordTable) []domain.Category {
	if len(table) == 0 {
		return nil
	}
	text := fold(article.Title + " " + article.Description + " " + article.Body)
	if text == "" {
		return nil
	}

	var out []domain.Category
	for _, cat := range table.Categories() {
		for _, kw := range table[cat] {
			if kw = fold(kw); kw != "" && strings.Contains(text, kw) {
				out = append(out, cat)
				break
			}
		}
	}
	return out
}

// Urgency scores a title from 1 to 5: one plus one per urgency term present.
func Urgency(title string, terms []string) int {
	text := fold(title)
	score := 1
	for _, term := range terms {
		if term = fold(term); term != "" && strings.Contains(text, term) {
			score++
		}
	}
	return min(score, 5)
}
