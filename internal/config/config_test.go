package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/internal/history"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ScrapeInterval != 15*time.Minute || cfg.ImpactWindow != 15*time.Minute {
		t.Errorf("intervals = %s / %s", cfg.ScrapeInterval, cfg.ImpactWindow)
	}
	if cfg.SimilarityThreshold != 0.5 || cfg.MinImpactLevel() != domain.ImpactNormal || cfg.MinScore != 2 {
		t.Errorf("scoring = %+v", cfg)
	}
	if cfg.History.Backend != history.BackendBolt || !strings.HasSuffix(cfg.History.BoltPath, filepath.Join("trendwatch", "history.db")) {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.History.Retention != 72*time.Hour || cfg.HTTP.Addr != ":5000" || !cfg.HTTP.Enabled {
		t.Errorf("retention/http = %s %+v", cfg.History.Retention, cfg.HTTP)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
scrape_interval: 5m
min_impact: high
history:
  backend: redis
  redis:
    addr: redis:6379
http:
  addr: ":8080"
`)
	t.Setenv("TRENDWATCH_SCRAPE_INTERVAL", "2m")
	t.Setenv("TRENDWATCH_HISTORY_REDIS_DB", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.HTTP.Addr != ":8080" {
		t.Errorf("file values = %+v", cfg)
	}
	if cfg.ScrapeInterval != 2*time.Minute {
		t.Errorf("env should override file, got %s", cfg.ScrapeInterval)
	}
	opts := cfg.HistoryOptions()
	if opts.Backend != history.BackendRedis || opts.Redis.Addr != "redis:6379" || opts.Redis.DB != 3 || opts.Redis.TTL != 72*time.Hour {
		t.Errorf("history options = %+v", opts)
	}
	if cfg.MinImpactLevel() != domain.ImpactHigh {
		t.Errorf("min impact = %s", cfg.MinImpactLevel())
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"threshold":  "similarity_threshold: 1.5\n",
		"interval":   "scrape_interval: 0s\n",
		"min impact": "min_impact: extreme\n",
		"min score":  "min_score: 9\n",
		"backend":    "history:\n  backend: mongo\n",
		"retention":  "history:\n  retention: -1h\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
