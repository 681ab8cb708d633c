// Package admin implements the mutating surface of the rule store:
// listing, inspecting, replacing, and deleting shard trees. All writes
// are validated up front and applied as whole-tree swaps, so a failed
// request leaves no partial state behind.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/seclayer/urlfilter/internal/urlfilter/common/log"
	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

var (
	// ErrInvalidPayload means the write body failed schema validation.
	// Nothing was applied.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrConflict means a strict-create targeted an existing shard.
	ErrConflict = errors.New("shard already exists")
	// ErrNotFound means a strict delete targeted an absent shard, path,
	// or query rule.
	ErrNotFound = errors.New("delete target not found")
)

// ApplyMode selects the write semantics for PutDomain. Merge-on-create is
// an intentional extension point, not a mode: the documented contract is
// full replacement.
type ApplyMode uint8

const (
	// ApplyOverwrite replaces the whole shard tree, creating it if absent.
	ApplyOverwrite ApplyMode = iota
	// ApplyStrictCreate fails with ErrConflict when the shard exists.
	ApplyStrictCreate
)

func (m ApplyMode) String() string {
	switch m {
	case ApplyOverwrite:
		return "overwrite"
	case ApplyStrictCreate:
		return "strict-create"
	default:
		return fmt.Sprintf("ApplyMode(%d)", m)
	}
}

// ShardStore is the write-through cache surface the mutator drives. All
// writes go through Update, a read-modify-write the implementation
// serializes per shard key: fn sees the current tree and returns its
// replacement (nil deletes the shard, the received tree unchanged writes
// nothing).
type ShardStore interface {
	Get(ctx context.Context, key domain.ShardKey) (*domain.ShardTree, bool, error)
	Update(ctx context.Context, key domain.ShardKey, fn func(tree *domain.ShardTree, found bool) (*domain.ShardTree, error)) error
	Keys(ctx context.Context) ([]string, error)
}

// ShardSummary is one row of the domain listing.
type ShardSummary struct {
	Key  string `json:"shard"`
	Safe bool   `json:"safe"`
}

// Service is the admin mutator.
type Service struct {
	shards   ShardStore
	validate *validator.Validate
	logger   log.Logger
}

// Options configures an admin Service.
type Options struct {
	Shards ShardStore
	Logger log.Logger
}

// New constructs an admin Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Service{
		shards:   opts.Shards,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ListDomains returns a summary per known shard, sorted by key. Shards
// that fail to load are skipped with a warning rather than failing the
// whole listing.
func (s *Service) ListDomains(ctx context.Context) ([]ShardSummary, error) {
	keys, err := s.shards.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	summaries := make([]ShardSummary, 0, len(keys))
	for _, k := range keys {
		tree, found, err := s.shards.Get(ctx, domain.ShardKey(k))
		if err != nil {
			s.logger.Warn(map[string]any{"shard": k, "error": err.Error()}, "Skipping unreadable shard in listing")
			continue
		}
		if !found {
			// Expired between Keys and Get; nothing to report.
			continue
		}
		summaries = append(summaries, ShardSummary{Key: k, Safe: tree.Root.Safe})
	}
	return summaries, nil
}

// GetDomain returns the shard's full tree, or the fail-open default tree
// when the shard has never been written.
func (s *Service) GetDomain(ctx context.Context, key string) (*domain.ShardTree, error) {
	shardKey, err := parseShardKey(key)
	if err != nil {
		return nil, err
	}
	tree, found, err := s.shards.Get(ctx, shardKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return domain.DefaultTree(), nil
	}
	return tree, nil
}

// PutDomain validates the payload and atomically replaces the shard's
// tree. Under ApplyStrictCreate an existing shard is a conflict; under
// ApplyOverwrite the write always succeeds with full replacement.
// It reports whether the shard was newly created.
func (s *Service) PutDomain(ctx context.Context, key string, payload *DomainPayload, mode ApplyMode) (bool, error) {
	shardKey, err := parseShardKey(key)
	if err != nil {
		return false, err
	}
	if payload == nil {
		return false, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if err := validatePayload(s.validate, payload); err != nil {
		return false, err
	}

	// The existence check and the swap run inside one serialized update,
	// so two strict-creates racing on the same shard can't both succeed.
	created := false
	err = s.shards.Update(ctx, shardKey, func(_ *domain.ShardTree, found bool) (*domain.ShardTree, error) {
		if found && mode == ApplyStrictCreate {
			return nil, fmt.Errorf("%w: %s", ErrConflict, shardKey)
		}
		created = !found
		return payload.Tree(), nil
	})
	if err != nil {
		return false, err
	}
	s.logger.Info(map[string]any{"shard": shardKey.String(), "mode": mode.String(), "created": created}, "Shard tree replaced")
	return created, nil
}

// DeleteDomain deletes a whole shard, one path subtree, or matching query
// rules, cascading to descendants. Absent targets are a no-op success
// unless strict is set, in which case they signal ErrNotFound.
//
// Targeting: empty path and param delete the shard; a path alone deletes
// that subtree; a param (optionally narrowed by value) deletes matching
// rules at the path ("/" addresses the root rules).
func (s *Service) DeleteDomain(ctx context.Context, key, path, param, value string, strict bool) error {
	shardKey, err := parseShardKey(key)
	if err != nil {
		return err
	}

	// Clone-edit-swap runs inside one serialized update per shard key, so
	// concurrent deletes of different paths or rules of the same shard all
	// land instead of clobbering each other's snapshots.
	wholeShard := false
	err = s.shards.Update(ctx, shardKey, func(tree *domain.ShardTree, found bool) (*domain.ShardTree, error) {
		if !found {
			return nil, s.missing(strict, "shard %s", shardKey)
		}

		if path == "" && param == "" {
			wholeShard = true
			return nil, nil
		}

		segments := domain.SplitPathSegments(path)
		next := tree.Clone()

		if param == "" {
			if !next.DeletePath(segments) {
				return tree, s.missing(strict, "path %q in shard %s", path, shardKey)
			}
			return next, nil
		}

		removed, ok := next.DeleteQueryRules(segments, param, value)
		if !ok {
			return tree, s.missing(strict, "path %q in shard %s", path, shardKey)
		}
		if removed == 0 {
			return tree, s.missing(strict, "query rule %s at %q in shard %s", param, path, shardKey)
		}
		return next, nil
	})
	if err != nil {
		return err
	}
	if wholeShard {
		s.logger.Info(map[string]any{"shard": shardKey.String()}, "Shard deleted")
	}
	return nil
}

func (s *Service) missing(strict bool, format string, args ...any) error {
	if strict {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return nil
}

// parseShardKey checks that key is a well-formed parent-domain authority.
// Subdomain levels belong inside the payload, not in the shard key.
func parseShardKey(key string) (domain.ShardKey, error) {
	shardKey, subdomains, err := domain.ParseAuthority(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(subdomains) != 0 {
		return "", fmt.Errorf("%w: shard key %q must be a parent domain authority (got subdomain levels %v)", ErrInvalidPayload, key, subdomains)
	}
	return shardKey, nil
}
