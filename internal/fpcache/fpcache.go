// Package fpcache persists episode fingerprints in a local bbolt database so
// repeated checks against the same reference dataset skip recomputing action
// prefixes. The cache is strictly advisory: a miss or a storage error only
// costs a recomputation, never a wrong answer, because fingerprints are
// verified against frame content before a match is accepted.
package fpcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kestrelrobotics/epcheck/internal/logging"
)

var fingerprintsBucket = []byte("fingerprints")

// entry is the stored value for one fingerprint key.
type entry struct {
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cache is a bbolt-backed fingerprint store implementing fingerprint.Store.
type Cache struct {
	db *bolt.DB
}

// DefaultPath returns the per-user cache location.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".epcheck-fingerprints.db"
	}
	return filepath.Join(homeDir, ".epcheck", "fingerprints.db")
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory failed: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, createErr := tx.CreateBucketIfNotExists(fingerprintsBucket)
		return createErr
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached fingerprint for key, if present. Storage errors are
// logged and reported as a miss.
func (c *Cache) Get(key string) (string, bool) {
	var fp string
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(fingerprintsBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var e entry
		if decodeErr := json.Unmarshal(raw, &e); decodeErr != nil {
			return decodeErr
		}
		fp = e.Fingerprint
		return nil
	})
	if err != nil {
		logging.Warn("fingerprint cache read failed", "key", key, "error", err)
		return "", false
	}
	return fp, fp != ""
}

// Put stores a fingerprint for key. Storage errors are logged and dropped.
func (c *Cache) Put(key string, fp string) {
	err := c.db.Update(func(tx *bolt.Tx) error {
		payload, marshalErr := json.Marshal(entry{Fingerprint: fp, CreatedAt: time.Now().UTC()})
		if marshalErr != nil {
			return marshalErr
		}
		return tx.Bucket(fingerprintsBucket).Put([]byte(key), payload)
	})
	if err != nil {
		logging.Warn("fingerprint cache write failed", "key", key, "error", err)
	}
}
