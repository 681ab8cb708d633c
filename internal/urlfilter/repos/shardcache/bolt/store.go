// Package bolt is the persistent-mode shard store. It has no native
// expiry: staleness is tracked per shard via an updated timestamp and
// reclaimed by the manager's periodic purge sweep.
package bolt

import (
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
	"github.com/seclayer/urlfilter/internal/urlfilter/repos/shardcache"
)

// Shard keys are spread across partition buckets keyed on the first
// character of the parent domain: one bucket per digit, letters paired two
// per bucket, and a catch-all for anything else. Keeps any one bucket's
// key count bounded and gives the purge sweep small independent units.
var partitions = func() [][]byte {
	var names [][]byte
	for d := 0; d <= 9; d++ {
		names = append(names, fmt.Appendf(nil, "d%d", d))
	}
	for l := 0; l <= 12; l++ {
		names = append(names, fmt.Appendf(nil, "l%d", l))
	}
	names = append(names, []byte("x"))
	return names
}()

func partitionFor(key string) []byte {
	if key == "" {
		return []byte("x")
	}
	c := key[0]
	switch {
	case c >= '0' && c <= '9':
		return fmt.Appendf(nil, "d%d", c-'0')
	case c >= 'a' && c <= 'z':
		return fmt.Appendf(nil, "l%d", (c-'a')/2)
	default:
		return []byte("x")
	}
}

// shardRecord is the persisted envelope for one shard tree.
type shardRecord struct {
	Updated int64              `json:"updated"`
	Tree    *domain.DomainNode `json:"tree"`
}

// Store implements shardcache.Store and shardcache.Sweeper on bbolt.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the Bolt database at path and ensures the
// partition buckets exist.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range partitions {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(key string) (*domain.ShardTree, bool, error) {
	var tree *domain.ShardTree
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(partitionFor(key))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		var rec shardRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decoding shard %q: %w", key, err)
		}
		tree = &domain.ShardTree{Root: rec.Tree, Updated: time.Unix(rec.Updated, 0)}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return tree, tree != nil, nil
}

// Put replaces the stored tree for key in a single write transaction, so
// a concurrent Get observes either the previous or the new tree.
func (s *Store) Put(key string, tree *domain.ShardTree) error {
	buf, err := json.Marshal(shardRecord{Updated: tree.Updated.Unix(), Tree: tree.Root})
	if err != nil {
		return fmt.Errorf("encoding shard %q: %w", key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(partitionFor(key)).Put([]byte(key), buf)
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(partitionFor(key)).Delete([]byte(key))
	})
}

func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, name := range partitions {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			if err := b.ForEach(func(k, _ []byte) error {
				keys = append(keys, string(k))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return keys, err
}

// PurgeOlderThan evicts shards whose updated timestamp predates cutoff.
// Candidates are collected in a read transaction, then each eviction runs
// in its own short write transaction (re-checking the timestamp), so the
// sweep never blocks writers for longer than a single delete.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int, error) {
	type candidate struct {
		bucket []byte
		key    []byte
	}
	var stale []candidate

	err := s.db.View(func(tx *bbolt.Tx) error {
		for _, name := range partitions {
			b := tx.Bucket(name)
			if b == nil {
				continue
			}
			if err := b.ForEach(func(k, v []byte) error {
				var rec shardRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("decoding shard %q: %w", k, err)
				}
				if rec.Updated < cutoff.Unix() {
					stale = append(stale, candidate{
						bucket: append([]byte(nil), name...),
						key:    append([]byte(nil), k...),
					})
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, c := range stale {
		if err := s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(c.bucket)
			v := b.Get(c.key)
			if v == nil {
				return nil
			}
			var rec shardRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding shard %q: %w", c.key, err)
			}
			// A writer may have refreshed the shard since the scan.
			if rec.Updated >= cutoff.Unix() {
				return nil
			}
			if err := b.Delete(c.key); err != nil {
				return err
			}
			evicted++
			return nil
		}); err != nil {
			return evicted, err
		}
	}
	return evicted, nil
}

var (
	_ shardcache.Store   = (*Store)(nil)
	_ shardcache.Sweeper = (*Store)(nil)
)
