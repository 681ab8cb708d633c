package classifier

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

// fakeShards is an in-memory ShardSource for classifier tests.
type fakeShards struct {
	trees map[domain.ShardKey]*domain.ShardTree
	err   error
}

func (f *fakeShards) Get(_ context.Context, key domain.ShardKey) (*domain.ShardTree, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	tree, ok := f.trees[key]
	return tree, ok, nil
}

func newService(shards ShardSource, failOpen bool) *Service {
	return New(Options{
		Shards:               shards,
		MaxQueryCost:         16,
		FailOpenOnStoreError: failOpen,
	})
}

func ciscoShard() *domain.ShardTree {
	return &domain.ShardTree{Root: &domain.DomainNode{
		Safe: false,
		Subdomains: map[string]*domain.DomainNode{
			"badguys": {
				Safe: false,
				Paths: map[string]*domain.PathNode{
					"safe": {
						Safe: true,
						Rules: []domain.QueryRule{
							{Param: "evil", Value: "1234", Safe: false, Cost: 1},
						},
					},
				},
			},
		},
	}}
}

func TestClassify_UnknownShardFailsOpen(t *testing.T) {
	svc := newService(&fakeShards{trees: map[domain.ShardKey]*domain.ShardTree{}}, false)

	v, err := svc.Classify(context.Background(), "www.cisco.com:443", "/c/en/us/course-selector.html", url.Values{"courseId": {"987654321"}})
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Equal(t, domain.MatchDefault, v.Level)
}

func TestClassify_MalformedAuthorityFailsClosed(t *testing.T) {
	svc := newService(&fakeShards{}, false)

	v, err := svc.Classify(context.Background(), "not an authority", "/", nil)
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, domain.MatchDefault, v.Level)
	assert.Equal(t, domain.ReasonMalformedAuthority, v.Reason)
}

func TestClassify_DomainLevelFallback(t *testing.T) {
	shards := &fakeShards{trees: map[domain.ShardKey]*domain.ShardTree{
		"cisco.com:443": ciscoShard(),
	}}
	svc := newService(shards, false)

	// Unknown subdomain under an unsafe parent shard inherits the deepest
	// matched node's flag.
	v, err := svc.Classify(context.Background(), "badguy.cisco.com:443", "/anything", nil)
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, domain.MatchDomain, v.Level)
}

func TestClassify_PathOverridesDomain(t *testing.T) {
	shards := &fakeShards{trees: map[domain.ShardKey]*domain.ShardTree{
		"cisco.com:443": ciscoShard(),
	}}
	svc := newService(shards, false)

	// Domain is unsafe, but /safe is explicitly safe.
	v, err := svc.Classify(context.Background(), "badguys.cisco.com:443", "/safe", nil)
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Equal(t, domain.MatchPath, v.Level)
}

func TestClassify_QueryRuleOverridesPath(t *testing.T) {
	shards := &fakeShards{trees: map[domain.ShardKey]*domain.ShardTree{
		"cisco.com:443": ciscoShard(),
	}}
	svc := newService(shards, false)

	v, err := svc.Classify(context.Background(), "badguys.cisco.com:443", "/safe", url.Values{"evil": {"1234"}})
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, domain.MatchQuery, v.Level)

	// Without the flagged parameter, the path default applies.
	v, err = svc.Classify(context.Background(), "badguys.cisco.com:443", "/safe", nil)
	require.NoError(t, err)
	assert.True(t, v.Safe)
}

func TestClassify_UnsafeDomainNoPathRules(t *testing.T) {
	shards := &fakeShards{trees: map[domain.ShardKey]*domain.ShardTree{
		"evil.net:80": {Root: &domain.DomainNode{Safe: false}},
	}}
	svc := newService(shards, false)

	for _, path := range []string{"/", "/a", "/a/b/c"} {
		v, err := svc.Classify(context.Background(), "evil.net:80", path, url.Values{"q": {"1"}})
		require.NoError(t, err)
		assert.False(t, v.Safe, "path %q", path)
	}
}

func TestClassify_RootPathQueryRules(t *testing.T) {
	shards := &fakeShards{trees: map[domain.ShardKey]*domain.ShardTree{
		"example.com:443": {Root: &domain.DomainNode{
			Safe: true,
			Rules: []domain.QueryRule{
				{Param: "token", Value: "bad", Safe: false, Cost: 1},
			},
		}},
	}}
	svc := newService(shards, false)

	v, err := svc.Classify(context.Background(), "example.com:443", "/", url.Values{"token": {"bad"}})
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, domain.MatchQuery, v.Level)

	v, err = svc.Classify(context.Background(), "example.com:443", "/", nil)
	require.NoError(t, err)
	assert.True(t, v.Safe)
	assert.Equal(t, domain.MatchDomain, v.Level)
}

func TestClassify_CostLimitFailsClosed(t *testing.T) {
	rules := make([]domain.QueryRule, 0, 20)
	for i := 0; i < 20; i++ {
		rules = append(rules, domain.QueryRule{Param: "p", Value: "never", Safe: true, Cost: 1})
	}
	shards := &fakeShards{trees: map[domain.ShardKey]*domain.ShardTree{
		"example.com:443": {Root: &domain.DomainNode{
			Safe: true,
			Paths: map[string]*domain.PathNode{
				"search": {Safe: true, Rules: rules},
			},
		}},
	}}
	svc := newService(shards, false)

	v, err := svc.Classify(context.Background(), "example.com:443", "/search", url.Values{"p": {"x"}})
	require.NoError(t, err)
	assert.False(t, v.Safe)
	assert.Equal(t, domain.ReasonCostLimitExceeded, v.Reason)
}

func TestClassify_StoreErrorPolicy(t *testing.T) {
	failing := &fakeShards{err: assert.AnError}

	t.Run("hard error by default", func(t *testing.T) {
		svc := newService(failing, false)
		_, err := svc.Classify(context.Background(), "cisco.com:443", "/", nil)
		require.Error(t, err)
	})

	t.Run("fail open when configured", func(t *testing.T) {
		svc := newService(failing, true)
		v, err := svc.Classify(context.Background(), "cisco.com:443", "/", nil)
		require.NoError(t, err)
		assert.True(t, v.Safe)
		assert.Equal(t, domain.MatchDefault, v.Level)
	})
}
