// Package history keeps the append-only record of articles that were already alerted.
package history

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("history store closed")

// Store records which article keys were already alerted.
type Store interface {
	// Seen reports whether key was recorded.
	Seen(ctx context.Context, key string) (bool, error)
	// Claim records key if absent. It returns true only for the caller that inserted it.
	Claim(ctx context.Context, key string) (bool, error)
	// Prune drops keys recorded before cutoff and returns how many were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	BoltPath  string
	Retention time.Duration
	Redis     RedisOptions
}

// Open builds the configured Store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBolt:
		return OpenBolt(opts.BoltPath)
	case BackendRedis:
		ro := opts.Redis
		if ro.TTL <= 0 {
			ro.TTL = opts.Retention
		}
		return NewRedisStore(ctx, ro)
	default:
		return nil, fmt.Errorf("history backend %q not supported", opts.Backend)
	}
}

// ArticleKey returns the identity of an article: its source plus normalized URL.
func ArticleKey(source, rawURL string) string {
	return strings.ToLower(strings.TrimSpace(source)) + "|" + NormalizeURL(rawURL)
}

// NormalizeURL lowercases scheme and host and strips fragments, tracking
// parameters and trailing slashes so re-scraped links map to one key.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	u.RawQuery = stripTracking(u.RawQuery)

	return strings.TrimRight(u.String(), "/")
}

// stripTracking drops utm_*, fbclid and gclid pairs from a raw query and keeps
// every other pair byte for byte, in order. Pairs that do not unescape are kept.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	kept := make([]string, 0, strings.Count(rawQuery, "&")+1)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		key = strings.ToLower(key)
		if strings.HasPrefix(key, "utm_") || key == "fbclid" || key == "gclid" {
			continue
		}
		kept = append(kept, pair)
	}
	return strings.Join(kept, "&")
}
