// Package config loads service settings from defaults, an optional YAML file,
// a .env file and TRENDWATCH_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/domain"
	"github.com/Adda-Baaj/trendwatch/internal/history"
	"github.com/Adda-Baaj/trendwatch/internal/logger"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TRENDWATCH"

// Config is the resolved service configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ScrapeInterval      time.Duration `mapstructure:"scrape_interval"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	ImpactWindow        time.Duration `mapstructure:"impact_window"`
	SimilarityThreshold float64       `mapstructure:"similarity_threshold"`
	MinImpact           string        `mapstructure:"min_impact"`
	MinScore            int           `mapstructure:"min_score"`

	KeywordsFile    string `mapstructure:"keywords_file"`
	ProvidersFile   string `mapstructure:"providers_file"`
	PublishersFile  string `mapstructure:"publishers_file"`
	SubscribersFile string `mapstructure:"subscribers_file"`

	History HistoryConfig `mapstructure:"history"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

// HistoryConfig selects the alert history backend.
type HistoryConfig struct {
	Backend   string        `mapstructure:"backend"`
	BoltPath  string        `mapstructure:"bolt_path"`
	Retention time.Duration `mapstructure:"retention"`
	Redis     RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds the redis history settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfigPath is where Load looks when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "trendwatch", "config.yaml")
}

// DefaultBoltPath is the history database location when none is configured.
func DefaultBoltPath() string {
	return filepath.Join(xdg.DataHome, "trendwatch", "history.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("scrape_interval", 15*time.Minute)
	v.SetDefault("fetch_timeout", 15*time.Second)
	v.SetDefault("impact_window", 15*time.Minute)
	v.SetDefault("similarity_threshold", 0.5)
	v.SetDefault("min_impact", string(domain.ImpactNormal))
	v.SetDefault("min_score", 2)
	v.SetDefault("keywords_file", "")
	v.SetDefault("providers_file", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("subscribers_file", "")
	v.SetDefault("history.backend", history.BackendBolt)
	v.SetDefault("history.bolt_path", DefaultBoltPath())
	v.SetDefault("history.retention", 72*time.Hour)
	v.SetDefault("history.redis.addr", "localhost:6379")
	v.SetDefault("history.redis.password", "")
	v.SetDefault("history.redis.db", 0)
	v.SetDefault("history.redis.prefix", "trendwatch:alerted:")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":5000")
}

// Load resolves the configuration. An explicit path must exist; with an empty
// path the default location is read only when present. A .env file in the
// working directory is loaded into the environment first, without overriding
// variables that are already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path = strings.TrimSpace(path)
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath()); err == nil {
			path = DefaultConfigPath()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("scrape_interval must be positive, got %s", c.ScrapeInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.ImpactWindow <= 0 {
		return fmt.Errorf("impact_window must be positive, got %s", c.ImpactWindow)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %v", c.SimilarityThreshold)
	}
	if _, ok := domain.ParseImpact(c.MinImpact); !ok {
		return fmt.Errorf("min_impact %q not recognized (expected normal or high)", c.MinImpact)
	}
	if c.MinScore < 1 || c.MinScore > 5 {
		return fmt.Errorf("min_score must be between 1 and 5, got %d", c.MinScore)
	}
	switch strings.ToLower(c.History.Backend) {
	case history.BackendMemory, history.BackendRedis:
	case history.BackendBolt:
		if strings.TrimSpace(c.History.BoltPath) == "" {
			return errors.New("history.bolt_path is required for the bolt backend")
		}
	default:
		return fmt.Errorf("history.backend %q not supported", c.History.Backend)
	}
	if c.History.Retention <= 0 {
		return fmt.Errorf("history.retention must be positive, got %s", c.History.Retention)
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required when the api is enabled")
	}
	return nil
}

// MinImpactLevel returns the parsed min_impact.
func (c *Config) MinImpactLevel() domain.ImpactLevel {
	l, _ := domain.ParseImpact(c.MinImpact)
	return l
}

// LoggerOptions maps the log settings.
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Level: c.LogLevel, Format: c.LogFormat}
}

// HistoryOptions maps the history settings.
func (c *Config) HistoryOptions() history.Options {
	return history.Options{
		Backend:   c.History.Backend,
		BoltPath:  c.History.BoltPath,
		Retention: c.History.Retention,
		Redis: history.RedisOptions{
			Addr:     c.History.Redis.Addr,
			Password: c.History.Redis.Password,
			DB:       c.History.Redis.DB,
			Prefix:   c.History.Redis.Prefix,
			TTL:      c.History.Retention,
		},
	}
}
