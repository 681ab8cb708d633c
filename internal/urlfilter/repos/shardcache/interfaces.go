package shardcache

import (
	"errors"
	"time"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

// ErrStoreUnavailable wraps backing-store I/O failures that survived the
// manager's bounded retries.
var ErrStoreUnavailable = errors.New("shard store unavailable")

// Store is the backend strategy behind the shard cache manager. Trees
// passed through a Store are treated as immutable snapshots: a Put fully
// replaces the previous tree for the key.
//
// Implementations must be safe for concurrent use. Expiry is the
// implementation's own business: stores with native TTL expire entries
// themselves, persistent stores additionally implement Sweeper and rely on
// the manager's periodic purge.
type Store interface {
	// Get returns the tree for key, or found=false when absent or expired.
	Get(key string) (tree *domain.ShardTree, found bool, err error)
	// Put replaces the tree stored under key.
	Put(key string, tree *domain.ShardTree) error
	// Delete removes the tree stored under key. Absent keys are a no-op.
	Delete(key string) error
	// Keys lists all shard keys currently stored.
	Keys() ([]string, error)
	// Close releases backend resources.
	Close() error
}

// Sweeper is implemented by stores without native expiry. PurgeOlderThan
// evicts shards whose freshness timestamp predates cutoff and reports how
// many were removed. Each eviction must be individually atomic; the sweep
// as a whole holds no long-lived lock.
type Sweeper interface {
	PurgeOlderThan(cutoff time.Time) (int, error)
}
