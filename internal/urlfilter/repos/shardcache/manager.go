package shardcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/robfig/cron/v3"

	"github.com/seclayer/urlfilter/internal/urlfilter/common/clock"
	"github.com/seclayer/urlfilter/internal/urlfilter/common/log"
	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

// Manager fronts a Store with a negative shard-key filter, per-key write
// serialization, and bounded retry around backend I/O.
//
// Reads are lock-free with respect to each other and to writes: trees are
// immutable snapshots, so a Get concurrent with a Put observes either the
// old or the new tree, never a partial one. Writes to the same key are
// serialized; writes to different keys proceed in parallel.
type Manager struct {
	store   Store
	clock   clock.Clock
	logger  log.Logger
	retries int
	backoff time.Duration

	mu    sync.RWMutex // guards bloom
	bloom *bloom.BloomFilter

	locks sync.Map // shard key → *sync.Mutex

	staleWindow time.Duration
	cron        *cron.Cron
}

// Options configures a Manager.
type Options struct {
	Store       Store
	Clock       clock.Clock
	Logger      log.Logger
	Retries     int           // retry attempts after the first failure
	Backoff     time.Duration // delay between attempts
	BloomSize   uint          // expected shard-key population
	BloomFPRate float64
	StaleWindow time.Duration // persistent-mode staleness cutoff
}

// New constructs a Manager and warms the negative filter from the store's
// current key set.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("shardcache: store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.BloomSize == 0 {
		opts.BloomSize = 1
	}
	if opts.BloomFPRate <= 0 || opts.BloomFPRate >= 1 {
		opts.BloomFPRate = 0.01
	}

	m := &Manager{
		store:       opts.Store,
		clock:       opts.Clock,
		logger:      opts.Logger,
		retries:     opts.Retries,
		backoff:     opts.Backoff,
		bloom:       bloom.NewWithEstimates(opts.BloomSize, opts.BloomFPRate),
		staleWindow: opts.StaleWindow,
	}

	keys, err := opts.Store.Keys()
	if err != nil {
		return nil, fmt.Errorf("shardcache: warming key filter: %w", err)
	}
	for _, k := range keys {
		m.bloom.AddString(k)
	}
	return m, nil
}

// Get returns the tree for key, or found=false for keys never written.
// A definite negative from the filter skips the backend entirely.
func (m *Manager) Get(ctx context.Context, key domain.ShardKey) (*domain.ShardTree, bool, error) {
	m.mu.RLock()
	maybe := m.bloom.TestString(string(key))
	m.mu.RUnlock()
	if !maybe {
		return nil, false, nil
	}

	var tree *domain.ShardTree
	var found bool
	err := m.withRetry(ctx, "get", func() error {
		var err error
		tree, found, err = m.store.Get(string(key))
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return tree, found, nil
}

// Put stamps the tree's freshness metadata and swaps it in as a whole.
func (m *Manager) Put(ctx context.Context, key domain.ShardKey, tree *domain.ShardTree) error {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	tree.Updated = m.clock.Now()
	if err := m.withRetry(ctx, "put", func() error {
		return m.store.Put(string(key), tree)
	}); err != nil {
		return err
	}

	m.mu.Lock()
	m.bloom.AddString(string(key))
	m.mu.Unlock()
	return nil
}

// Update applies a read-modify-write to the shard under key. The per-key
// lock is held across the whole sequence, so concurrent updates to the same
// shard compose instead of overwriting each other's snapshots. fn receives
// the current tree (nil when absent) and returns its replacement: nil
// deletes the shard, the received tree itself (same pointer) leaves the
// store untouched, anything else is stamped and swapped in whole.
func (m *Manager) Update(ctx context.Context, key domain.ShardKey, fn func(tree *domain.ShardTree, found bool) (*domain.ShardTree, error)) error {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	var tree *domain.ShardTree
	var found bool
	m.mu.RLock()
	maybe := m.bloom.TestString(string(key))
	m.mu.RUnlock()
	if maybe {
		if err := m.withRetry(ctx, "get", func() error {
			var err error
			tree, found, err = m.store.Get(string(key))
			return err
		}); err != nil {
			return err
		}
	}

	next, err := fn(tree, found)
	if err != nil {
		return err
	}
	switch {
	case next == nil && !found:
		return nil
	case next == nil:
		return m.withRetry(ctx, "delete", func() error {
			return m.store.Delete(string(key))
		})
	case next == tree:
		return nil
	}

	next.Updated = m.clock.Now()
	if err := m.withRetry(ctx, "put", func() error {
		return m.store.Put(string(key), next)
	}); err != nil {
		return err
	}
	m.mu.Lock()
	m.bloom.AddString(string(key))
	m.mu.Unlock()
	return nil
}

// Delete removes the shard and all of its descendants. The filter is left
// untouched: a stale maybe-positive just falls through to a store miss.
func (m *Manager) Delete(ctx context.Context, key domain.ShardKey) error {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return m.withRetry(ctx, "delete", func() error {
		return m.store.Delete(string(key))
	})
}

// Keys lists all shard keys currently stored.
func (m *Manager) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := m.withRetry(ctx, "keys", func() error {
		var err error
		keys, err = m.store.Keys()
		return err
	})
	return keys, err
}

// Close stops the purge schedule, if any, and closes the backend.
func (m *Manager) Close() error {
	m.StopPurge()
	return m.store.Close()
}

func (m *Manager) keyLock(key domain.ShardKey) *sync.Mutex {
	actual, _ := m.locks.LoadOrStore(string(key), &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// withRetry runs op, retrying transient failures up to the configured
// bound with a fixed backoff. The final failure is wrapped as
// ErrStoreUnavailable.
func (m *Manager) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, ctx.Err())
			case <-time.After(m.backoff):
			}
			m.logger.Warn(map[string]any{
				"op":      op,
				"attempt": attempt,
				"error":   err.Error(),
			}, "Retrying shard store operation")
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
