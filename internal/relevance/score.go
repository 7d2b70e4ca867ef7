package relevance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/internal/history"
)

const (
	DefaultWindow    = 15 * time.Minute
	DefaultThreshold = 0.5
)

// History is the read side of the alert history.
type History interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// ScoreOptions tunes story grouping.
type ScoreOptions struct {
	// Window bounds the publication time gap between two reports of one story.
	Window time.Duration
	// Threshold is the minimum title Jaccard similarity for two reports of one story.
	Threshold float64
}

func (o ScoreOptions) withDefaults() ScoreOptions {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// Scored is an article that survived deduplication, with its story impact.
type Scored struct {
	Article domain.Article
	Key     string
	Impact  domain.ImpactLevel
	// Sources is the number of distinct providers that reported the story.
	Sources int
	// GroupID is the key of the first article of the story in batch order.
	GroupID string
}

// DedupeAndScore drops articles already in hist or repeated within batch,
// groups the rest into stories and marks stories seen in two or more distinct
// sources as high impact. Grouping is transitive: the window applies to each
// pair that links two reports, not to the whole story. Output keeps batch
// order. The only error is a failed history lookup.
func DedupeAndScore(ctx context.Context, batch []domain.Article, hist History, opts ScoreOptions) ([]Scored, error) {
	opts = opts.withDefaults()

	fresh := make([]Scored, 0, len(batch))
	inBatch := make(map[string]struct{}, len(batch))
	for _, art := range batch {
		if strings.TrimSpace(art.URL) == "" {
			continue
		}
		key := history.ArticleKey(art.ProviderID, art.URL)
		if _, dup := inBatch[key]; dup {
			continue
		}
		inBatch[key] = struct{}{}

		if hist != nil {
			seen, err := hist.Seen(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("check history for %s: %w", key, err)
			}
			if seen {
				continue
			}
		}
		fresh = append(fresh, Scored{Article: art, Key: key})
	}

	sigs := make([][]string, len(fresh))
	for i := range fresh {
		sigs[i] = Signature(fresh[i].Article.Title)
	}

	groups := newUnionFind(len(fresh))
	for i := range fresh {
		for j := i + 1; j < len(fresh); j++ {
			if !withinWindow(fresh[i].Article, fresh[j].Article, opts.Window) {
				continue
			}
			if Jaccard(sigs[i], sigs[j]) >= opts.Threshold {
				groups.union(i, j)
			}
		}
	}

	sources := make(map[int]map[string]struct{})
	first := make(map[int]int)
	for i := range fresh {
		root := groups.find(i)
		if _, ok := first[root]; !ok {
			first[root] = i
			sources[root] = make(map[string]struct{})
		}
		sources[root][strings.ToLower(strings.TrimSpace(fresh[i].Article.ProviderID))] = struct{}{}
	}

	for i := range fresh {
		root := groups.find(i)
		n := len(sources[root])
		fresh[i].Sources = n
		fresh[i].GroupID = fresh[first[root]].Key
		fresh[i].Impact = domain.ImpactNormal
		if n >= 2 {
			fresh[i].Impact = domain.ImpactHigh
		}
	}
	return fresh, nil
}

func withinWindow(a, b domain.Article, window time.Duration) bool {
	ta, tb := a.Timestamp(), b.Timestamp()
	if ta.IsZero() || tb.IsZero() {
		return true
	}
	gap := ta.Sub(tb)
	if gap < 0 {
		gap = -gap
	}
	return gap <= window
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
