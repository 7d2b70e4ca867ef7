// Package pipeline runs one scrape cycle: fetch every provider, enrich the
// listings, classify and score them, claim fresh alerts in history and hand
// them to the publishers.
package pipeline

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/internal/history"
	"github.com/Adda-Baaj/trendwatch/internal/logger"
	"github.com/Adda-Baaj/trendwatch/internal/relevance"
	"github.com/Adda-Baaj/trendwatch/internal/subscribers"
	"github.com/Adda-Baaj/trendwatch/pkg/providers"
	"github.com/Adda-Baaj/trendwatch/pkg/publishers"

	"golang.org/x/sync/errgroup"
)

const maxConcurrentProviders = 4

// Enricher fills article pages in after listing.
type Enricher interface {
	Enrich(ctx context.Context, cfg providers.Provider, articles []domain.Article) []domain.Article
}

// Audience resolves who receives an alert.
type Audience interface {
	Recipients(cats []domain.Category, now time.Time) []subscribers.Subscriber
}

// Options wires a Pipeline.
type Options struct {
	Providers  []providers.Provider
	Fetchers   providers.FetcherRegistry
	Enricher   Enricher
	Classifier *relevance.Classifier
	History    history.Store
	Audience   Audience
	Publishers []publishers.Publisher
	MinImpact  domain.ImpactLevel
	MinScore   int
	Retention  time.Duration
	Logger     logger.Logger
	Now        func() time.Time
}

// Report summarizes one cycle.
type Report struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Providers       int           `json:"providers"`
	FailedProviders int           `json:"failed_providers"`
	Fetched         int           `json:"fetched"`
	Fresh           int           `json:"fresh"`
	Alerted         int           `json:"alerted"`
	High            int           `json:"high"`
	PublishFailures int           `json:"publish_failures"`
	Pruned          int           `json:"pruned"`
}

// Pipeline executes scrape cycles. It is safe for concurrent use; the history
// claim guarantees every article is alerted once.
type Pipeline struct {
	opts Options
	log  logger.Logger
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Fetchers == nil {
		return nil, errors.New("pipeline: fetcher registry is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("pipeline: classifier is required")
	}
	if opts.History == nil {
		return nil, errors.New("pipeline: history store is required")
	}
	if opts.MinImpact == "" {
		opts.MinImpact = domain.ImpactNormal
	}
	if opts.MinScore < 1 {
		opts.MinScore = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts, log: logger.Ensure(opts.Logger)}, nil
}

// Providers returns the providers the pipeline scrapes.
func (p *Pipeline) Providers() []providers.Provider {
	out := make([]providers.Provider, len(p.opts.Providers))
	copy(out, p.opts.Providers)
	return out
}

// Classify scores articles against history without claiming anything.
func (p *Pipeline) Classify(ctx context.Context, articles []domain.Article) ([]relevance.Result, error) {
	return p.opts.Classifier.Run(ctx, articles, p.opts.History)
}

// RunCycle performs one full scrape cycle. Provider, page and publisher
// failures are logged and counted; only a history failure or cancellation
// aborts the cycle.
func (p *Pipeline) RunCycle(ctx context.Context) (Report, error) {
	start := p.opts.Now()
	rep := Report{StartedAt: start, Providers: len(p.opts.Providers)}

	batch, failed := p.fetchAll(ctx, start)
	rep.FailedProviders = failed
	rep.Fetched = len(batch)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	results, err := p.opts.Classifier.Run(ctx, batch, p.opts.History)
	if err != nil {
		return rep, err
	}
	rep.Fresh = len(results)

	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if !p.alertable(res) {
			continue
		}

		claimed, err := p.opts.History.Claim(ctx, res.Key)
		if err != nil {
			return rep, err
		}
		if !claimed {
			p.log.DebugObj("article claimed by another cycle", "alert_skipped", map[string]any{
				"key": res.Key,
			})
			continue
		}

		rep.Alerted++
		if res.Impact == domain.ImpactHigh {
			rep.High++
		}
		rep.PublishFailures += p.publish(ctx, p.buildEvent(res))
	}

	if p.opts.Retention > 0 {
		pruned, err := p.opts.History.Prune(ctx, p.opts.Now().Add(-p.opts.Retention))
		if err != nil {
			p.log.WarnObj("history prune failed", "history_prune_error", map[string]any{"error": err})
		}
		rep.Pruned = pruned
	}

	rep.Duration = p.opts.Now().Sub(start)
	p.log.InfoObj("scrape cycle finished", "cycle_done", map[string]any{
		"providers":        rep.Providers,
		"failed_providers": rep.FailedProviders,
		"fetched":          rep.Fetched,
		"fresh":            rep.Fresh,
		"alerted":          rep.Alerted,
		"high":             rep.High,
		"publish_failures": rep.PublishFailures,
		"duration_ms":      rep.Duration.Milliseconds(),
	})
	return rep, nil
}

func (p *Pipeline) alertable(res relevance.Result) bool {
	return len(res.Categories) > 0 &&
		res.Impact.AtLeast(p.opts.MinImpact) &&
		res.Score >= p.opts.MinScore
}

// fetchAll lists and enriches every provider concurrently. The batch keeps
// provider order so scoring is deterministic.
func (p *Pipeline) fetchAll(ctx context.Context, now time.Time) ([]domain.Article, int) {
	perProvider := make([][]domain.Article, len(p.opts.Providers))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProviders)
	for i, cfg := range p.opts.Providers {
		g.Go(func() error {
			arts, err := p.fetchProvider(gctx, cfg, now)
			if err != nil {
				p.log.WarnObj("provider fetch failed", "provider_error", map[string]any{
					"provider_id": cfg.ID,
					"error":       err,
				})
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			perProvider[i] = arts
			return nil
		})
	}
	_ = g.Wait()

	var batch []domain.Article
	for _, arts := range perProvider {
		batch = append(batch, arts...)
	}
	return batch, failed
}

func (p *Pipeline) fetchProvider(ctx context.Context, cfg providers.Provider, now time.Time) ([]domain.Article, error) {
	f, err := p.opts.Fetchers.FetcherFor(cfg)
	if err != nil {
		return nil, err
	}
	arts, err := f.Fetch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for i := range arts {
		if arts[i].ProviderID == "" {
			arts[i].ProviderID = cfg.ID
		}
		if arts[i].FetchedAt.IsZero() {
			arts[i].FetchedAt = now
		}
	}
	if p.opts.Enricher != nil {
		arts = p.opts.Enricher.Enrich(ctx, cfg, arts)
	}
	p.log.InfoObj("provider fetched", "provider_fetched", map[string]any{
		"provider_id": cfg.ID,
		"articles":    len(arts),
	})
	return arts, nil
}

func (p *Pipeline) buildEvent(res relevance.Result) publishers.Event {
	now := p.opts.Now()
	sum := sha1.Sum([]byte(res.Key))

	cats := make([]string, len(res.Categories))
	for i, c := range res.Categories {
		cats[i] = string(c)
	}

	evt := publishers.Event{
		ID:          hex.EncodeToString(sum[:]),
		ProviderID:  res.Article.ProviderID,
		URL:         res.Article.URL,
		Title:       res.Article.Title,
		Summary:     res.Article.Summary(),
		Categories:  cats,
		Impact:      string(res.Impact),
		Sources:     res.Sources,
		Score:       res.Score,
		PublishedAt: res.Article.PublishedAt,
		DetectedAt:  now,
	}
	if p.opts.Audience != nil {
		for _, s := range p.opts.Audience.Recipients(res.Categories, now) {
			evt.Recipients = append(evt.Recipients, publishers.Recipient{Name: s.Name, Phone: s.Phone})
		}
	}
	return evt
}

// publish hands evt to every publisher and returns the number that failed.
func (p *Pipeline) publish(ctx context.Context, evt publishers.Event) int {
	failures := 0
	for _, pub := range p.opts.Publishers {
		if err := pub.Publish(ctx, evt); err != nil {
			failures++
			p.log.WarnObj("publish failed", "publish_error", map[string]any{
				"publisher_id": pub.ID(),
				"event_id":     evt.ID,
				"url":          evt.URL,
				"error":        err,
			})
		}
	}
	return failures
}
