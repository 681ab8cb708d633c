// Package classifier resolves ALLOW/BLOCK verdicts for decomposed URLs by
// walking the hierarchical rule store. The policy is asymmetric on
// purpose: unknown domains fail open, while malformed input and an
// exhausted query budget fail closed.
package classifier

import (
	"context"
	"net/url"

	"github.com/seclayer/urlfilter/internal/urlfilter/common/log"
	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

// Service is the classification engine. It is a pure read path: no method
// mutates shard state.
type Service struct {
	shards   ShardSource
	logger   log.Logger
	maxCost  int
	failOpen bool
}

// Options configures a classifier Service.
type Options struct {
	Shards ShardSource
	Logger log.Logger
	// MaxQueryCost is the global comparison budget per request.
	MaxQueryCost int
	// FailOpenOnStoreError treats an unavailable store like an unknown
	// shard (allow). When false, store errors surface to the caller.
	FailOpenOnStoreError bool
}

// New constructs a classifier Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Service{
		shards:   opts.Shards,
		logger:   logger,
		maxCost:  opts.MaxQueryCost,
		failOpen: opts.FailOpenOnStoreError,
	}
}

// Classify resolves a verdict for one decomposed URL. The only error it
// can return is a store failure when fail-open is disabled; every other
// condition resolves to a verdict.
func (s *Service) Classify(ctx context.Context, authority, path string, query url.Values) (domain.Verdict, error) {
	key, subdomains, err := domain.ParseAuthority(authority)
	if err != nil {
		s.logger.Debug(map[string]any{"authority": authority, "error": err.Error()}, "Blocking unparsable authority")
		return domain.Verdict{Safe: false, Level: domain.MatchDefault, Reason: domain.ReasonMalformedAuthority}, nil
	}

	tree, found, err := s.shards.Get(ctx, key)
	if err != nil {
		if !s.failOpen {
			return domain.Verdict{}, err
		}
		s.logger.Warn(map[string]any{"shard": key.String(), "error": err.Error()}, "Shard store unavailable, failing open")
		found = false
	}
	if !found {
		return domain.AllowAll(), nil
	}

	// The deepest matched domain node's flag is the eventual fallback; a
	// partially matched chain still resolves to whatever rule existed at
	// that depth. The flag alone is never an early verdict, since path
	// and query rules below may refine it.
	node, _ := tree.FindDomain(subdomains)

	segments := domain.SplitPathSegments(path)
	pathNode, _ := node.FindPath(segments)

	switch {
	case len(segments) == 0:
		// Root request: rules attached at "/" apply, domain flag backs them.
		return matchQueryRules(node.Rules, query, s.maxCost, node.Safe, domain.MatchDomain), nil
	case pathNode == nil:
		// No path rule at any depth: the domain-level flag decides.
		return domain.Verdict{Safe: node.Safe, Level: domain.MatchDomain}, nil
	default:
		return matchQueryRules(pathNode.Rules, query, s.maxCost, pathNode.Safe, domain.MatchPath), nil
	}
}
