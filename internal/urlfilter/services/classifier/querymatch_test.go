package classifier

import (
	"net/url"
	"testing"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

func TestMatchQueryRules(t *testing.T) {
	rules := []domain.QueryRule{
		{Param: "evil", Value: "1234", Safe: false, Cost: 1},
		{Param: "courseId", Value: "42", Safe: true, Cost: 1},
	}

	tests := []struct {
		name       string
		rules      []domain.QueryRule
		query      url.Values
		maxCost    int
		wantSafe   bool
		wantLevel  domain.MatchLevel
		wantReason string
	}{
		{
			name:      "no rules falls back to node flag",
			rules:     nil,
			query:     url.Values{"x": {"y"}},
			maxCost:   10,
			wantSafe:  true,
			wantLevel: domain.MatchPath,
		},
		{
			name:      "unsafe rule matches",
			rules:     rules,
			query:     url.Values{"evil": {"1234"}},
			maxCost:   10,
			wantSafe:  false,
			wantLevel: domain.MatchQuery,
		},
		{
			name:      "safe rule matches",
			rules:     rules,
			query:     url.Values{"courseId": {"42"}},
			maxCost:   10,
			wantSafe:  true,
			wantLevel: domain.MatchQuery,
		},
		{
			name:      "param present with different value falls back",
			rules:     rules,
			query:     url.Values{"evil": {"5678"}},
			maxCost:   10,
			wantSafe:  true,
			wantLevel: domain.MatchPath,
		},
		{
			name:      "absent params consume no budget",
			rules:     rules,
			query:     url.Values{"other": {"1"}},
			maxCost:   1,
			wantSafe:  true,
			wantLevel: domain.MatchPath,
		},
		{
			name:      "multi-valued param matches on any instance",
			rules:     rules,
			query:     url.Values{"evil": {"0", "1234"}},
			maxCost:   10,
			wantSafe:  false,
			wantLevel: domain.MatchQuery,
		},
		{
			name: "budget exhausted fails closed",
			rules: []domain.QueryRule{
				{Param: "a", Value: "1", Safe: true, Cost: 3},
				{Param: "b", Value: "2", Safe: true, Cost: 3},
			},
			query:      url.Values{"a": {"x"}, "b": {"2"}},
			maxCost:    4,
			wantSafe:   false,
			wantLevel:  domain.MatchQuery,
			wantReason: domain.ReasonCostLimitExceeded,
		},
		{
			name: "budget charged before the matching comparison",
			rules: []domain.QueryRule{
				{Param: "a", Value: "1", Safe: true, Cost: 5},
			},
			query:      url.Values{"a": {"1"}},
			maxCost:    4,
			wantSafe:   false,
			wantLevel:  domain.MatchQuery,
			wantReason: domain.ReasonCostLimitExceeded,
		},
		{
			name: "first match wins over later rules",
			rules: []domain.QueryRule{
				{Param: "p", Value: "v", Safe: true, Cost: 1},
				{Param: "p", Value: "v", Safe: false, Cost: 1},
			},
			query:     url.Values{"p": {"v"}},
			maxCost:   10,
			wantSafe:  true,
			wantLevel: domain.MatchQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := matchQueryRules(tt.rules, tt.query, tt.maxCost, true, domain.MatchPath)
			if v.Safe != tt.wantSafe {
				t.Errorf("safe = %v, want %v", v.Safe, tt.wantSafe)
			}
			if v.Level != tt.wantLevel {
				t.Errorf("level = %v, want %v", v.Level, tt.wantLevel)
			}
			if v.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", v.Reason, tt.wantReason)
			}
		})
	}
}
