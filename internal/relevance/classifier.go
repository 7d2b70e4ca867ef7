package relevance

import (
	"context"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
)

// Result is one alert candidate produced by a scrape cycle.
type Result struct {
	Article    domain.Article     `json:"article"`
	Key        string             `json:"key"`
	Categories []domain.Category  `json:"categories"`
	Impact     domain.ImpactLevel `json:"impact"`
	Sources    int                `json:"sources"`
	GroupID    string             `json:"group_id"`
	Score      int                `json:"score"`
}

// Classifier combines deduplication, story scoring and keyword classification.
type Classifier struct {
	keywords Keywords
	opts     ScoreOptions
}

// NewClassifier returns a Classifier for the given keyword configuration.
func NewClassifier(kw Keywords, opts ScoreOptions) *Classifier {
	return &Classifier{keywords: kw, opts: opts.withDefaults()}
}

// Keywords returns the classifier's keyword configuration.
func (c *Classifier) Keywords() Keywords { return c.keywords }

// Run scores batch against hist and classifies every surviving article.
// Articles without categories are kept with an empty category set; callers decide
// whether to alert on them.
func (c *Classifier) Run(ctx context.Context, batch []domain.Article, hist History) ([]Result, error) {
	scored, err := DedupeAndScore(ctx, batch, hist, c.opts)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(scored))
	for _, s := range scored {
		out = append(out, Result{
			Article:    s.Article,
			Key:        s.Key,
			Categories: Classify(s.Article, c.keywords.Table),
			Impact:     s.Impact,
			Sources:    s.Sources,
			GroupID:    s.GroupID,
			Score:      Urgency(s.Article.Title, c.keywords.UrgencyTerms),
		})
	}
	return out, nil
}
