// Package cache is the per-run memoization cache for the feature-matrix
// builder and factor-method selector (§9 "Ambient mutable caches").
//
// Unlike internal/store's durable raw/curated tiers, a Cache never survives
// past the orchestrator invocation that created it: New opens a bbolt
// database in a fresh temp file, and Close removes that file along with the
// open handle. This repurposes the teacher's bbolt dependency — previously
// the long-lived primary store — as a disposable scratch table keyed by
// (series_id, start, end), the exact memoization key named in the spec.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketTables = []byte("tables")

// Cache is a run-scoped key/value memoization store. The zero value is not
// usable; construct with New.
type Cache struct {
	db   *bolt.DB
	path string
}

// New opens a fresh, empty cache backed by a temp file under dir (the
// system temp directory if dir is empty). The file is removed on Close, so
// a Cache must not be shared across orchestrator invocations.
func New(dir string) (*Cache, error) {
	f, err := os.CreateTemp(dir, "glci-cache-*.bolt")
	if err != nil {
		return nil, fmt.Errorf("creating cache temp file: %w", err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path) // bbolt creates it fresh; a zero-length stub confuses it on some platforms

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTables)
		return err
	}); err != nil {
		db.Close()
		os.Remove(path)
		return nil, fmt.Errorf("initializing cache bucket: %w", err)
	}
	return &Cache{db: db, path: path}, nil
}

// Close closes the underlying database and removes its backing file.
func (c *Cache) Close() error {
	err := c.db.Close()
	os.Remove(c.path)
	return err
}

// Key builds the canonical memoization key for a fetched window:
// "<series_id>|<start>|<end>", start/end as RFC3339 dates (empty string for
// an unbounded side).
func Key(seriesID, start, end string) string {
	return seriesID + "|" + start + "|" + end
}

// Get retrieves a previously-stored value for key, JSON-decoding it into
// dst (a pointer). Returns found=false if the key is absent.
func (c *Cache) Get(key string, dst interface{}) (found bool, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketTables).Get([]byte(key))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, dst)
	})
	return found, err
}

// Put stores value under key, JSON-encoded, overwriting any prior entry.
func (c *Cache) Put(key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value for %q: %w", key, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTables).Put([]byte(key), body)
	})
}

// Len returns the number of memoized entries, mostly useful for tests and
// diagnostics.
func (c *Cache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketTables).Stats().KeyN
		return nil
	})
	return n, err
}
