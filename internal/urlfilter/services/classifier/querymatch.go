package classifier

import (
	"net/url"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

// matchQueryRules evaluates the node's rules against the request's query
// parameters under the comparison budget maxCost.
//
// Rules are checked in stored order. A rule participates only when its
// parameter name is present in the request, and only participating rules
// consume budget. The budget is charged before the value comparison: a
// request padded with enough matched parameter names fails closed with
// ReasonCostLimitExceeded even if a later (or the current) rule would have
// matched, which is the point of the limiter. The first exact name+value
// match decides the verdict; with no match and budget to spare, the
// enclosing node's own flag applies.
func matchQueryRules(rules []domain.QueryRule, query url.Values, maxCost int, fallbackSafe bool, fallbackLevel domain.MatchLevel) domain.Verdict {
	spent := 0
	for _, rule := range rules {
		values, present := query[rule.Param]
		if !present {
			continue
		}
		spent += rule.Cost
		if spent > maxCost {
			return domain.Verdict{
				Safe:   false,
				Level:  domain.MatchQuery,
				Reason: domain.ReasonCostLimitExceeded,
			}
		}
		for _, v := range values {
			if v == rule.Value {
				return domain.Verdict{Safe: rule.Safe, Level: domain.MatchQuery}
			}
		}
	}
	return domain.Verdict{Safe: fallbackSafe, Level: fallbackLevel}
}
