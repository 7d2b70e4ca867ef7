package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var alertedBucket = []byte("alerted")

// BoltStore persists keys in a bbolt file. bbolt serializes write
// transactions, so Claim is atomic across goroutines sharing the store.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the history database at path.
func OpenBolt(path string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("bolt history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt history: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(alertedBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt history: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Seen(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(alertedBucket).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read history: %w", err)
	}
	return found, nil
}

func (s *BoltStore) Claim(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var claimed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(alertedBucket)
		if b.Get([]byte(key)) != nil {
			return nil
		}
		stamp, err := time.Now().UTC().MarshalBinary()
		if err != nil {
			return err
		}
		if err := b.Put([]byte(key), stamp); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("claim history key: %w", err)
	}
	return claimed, nil
}

func (s *BoltStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(alertedBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var at time.Time
			if err := at.UnmarshalBinary(v); err != nil {
				return nil
			}
			if at.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return removed, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
