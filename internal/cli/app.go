package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Adda-Baaj/trendwatch/internal/config"
	"github.com/Adda-Baaj/trendwatch/internal/crawler"
	"github.com/Adda-Baaj/trendwatch/internal/history"
	"github.com/Adda-Baaj/trendwatch/internal/logger"
	"github.com/Adda-Baaj/trendwatch/internal/pipeline"
	"github.com/Adda-Baaj/trendwatch/internal/relevance"
	"github.com/Adda-Baaj/trendwatch/internal/subscribers"
	"github.com/Adda-Baaj/trendwatch/pkg/httpclient"
	"github.com/Adda-Baaj/trendwatch/pkg/providers"
	"github.com/Adda-Baaj/trendwatch/pkg/publishers"
)

// app holds everything a command needs for one process lifetime.
type app struct {
	cfg        *config.Config
	log        logger.Logger
	history    history.Store
	classifier *relevance.Classifier
	pipeline   *pipeline.Pipeline
	publishers []publishers.Publisher
}

func loadConfig(flags *rootFlags) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LoggerOptions())
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func loadKeywords(path string) (relevance.Keywords, error) {
	if strings.TrimSpace(path) == "" {
		return relevance.DefaultKeywords(), nil
	}
	return relevance.LoadKeywords(path)
}

// newClassifierApp opens history and the classifier only.
func newClassifierApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	kw, err := loadKeywords(cfg.KeywordsFile)
	if err != nil {
		return nil, err
	}
	store, err := history.Open(ctx, cfg.HistoryOptions())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &app{
		cfg:     cfg,
		log:     log,
		history: store,
		classifier: relevance.NewClassifier(kw, relevance.ScoreOptions{
			Window:    cfg.ImpactWindow,
			Threshold: cfg.SimilarityThreshold,
		}),
	}, nil
}

// newApp builds the full pipeline.
func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a, err := newClassifierApp(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := a.wirePipeline(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wirePipeline(ctx context.Context) error {
	provReg, err := providers.LoadRegistry(a.cfg.ProvidersFile)
	if err != nil {
		return err
	}
	dir, err := subscribers.LoadDirectory(a.cfg.SubscribersFile)
	if err != nil {
		return err
	}

	if strings.TrimSpace(a.cfg.PublishersFile) != "" {
		pubReg, err := publishers.LoadRegistry(a.cfg.PublishersFile)
		if err != nil {
			return err
		}
		a.publishers, err = publishers.BuildAll(ctx, publishers.DefaultRegistry(), pubReg.Enabled(), a.log)
		if err != nil {
			return err
		}
	}
	if len(a.publishers) == 0 {
		a.log.WarnObj("no publishers configured, alerts are only logged", "publishers_empty", nil)
	}

	client := httpclient.NewRestyClient(a.cfg.FetchTimeout)
	a.pipeline, err = pipeline.New(pipeline.Options{
		Providers:  provReg.Enabled(),
		Fetchers:   providers.DefaultFetcherRegistry(client),
		Enricher:   crawler.NewScraper(client, a.log),
		Classifier: a.classifier,
		History:    a.history,
		Audience:   dir,
		Publishers: a.publishers,
		MinImpact:  a.cfg.MinImpactLevel(),
		MinScore:   a.cfg.MinScore,
		Retention:  a.cfg.History.Retention,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}

	a.log.InfoObj("pipeline ready", "pipeline_ready", map[string]any{
		"providers":   len(provReg.Enabled()),
		"publishers":  len(a.publishers),
		"subscribers": dir.Len(),
		"history":     a.cfg.History.Backend,
	})
	return nil
}

// Close releases publishers and the history store.
func (a *app) Close() error {
	var errs []error
	if err := publishers.CloseAll(a.publishers); err != nil {
		errs = append(errs, err)
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
