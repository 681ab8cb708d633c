package domain

import "fmt"

// MatchLevel records which level of the rule hierarchy produced a verdict.
type MatchLevel uint8

const (
	// MatchDefault means no rule was consulted (unknown shard, malformed input).
	MatchDefault MatchLevel = iota
	// MatchDomain means the domain-level flag decided the verdict.
	MatchDomain
	// MatchPath means the deepest matched path node's flag decided it.
	MatchPath
	// MatchQuery means a query rule (or the cost limiter) decided it.
	MatchQuery
)

func (l MatchLevel) String() string {
	switch l {
	case MatchDefault:
		return "default"
	case MatchDomain:
		return "domain"
	case MatchPath:
		return "path"
	case MatchQuery:
		return "query"
	default:
		return fmt.Sprintf("MatchLevel(%d)", l)
	}
}

// Verdict reasons for blocked classifications that did not come from an
// explicit rule flag.
const (
	ReasonMalformedAuthority = "malformed authority"
	ReasonCostLimitExceeded  = "cost limit exceeded"
)

// Verdict is the classification result for one decomposed URL. Verdicts
// are total: every input resolves to safe or blocked, never "unknown".
type Verdict struct {
	Safe   bool
	Level  MatchLevel
	Reason string // set only for fail-closed outcomes without a matching rule
}

// Allowed reports whether the request should pass.
func (v Verdict) Allowed() bool { return v.Safe }

// AllowAll is the fail-open verdict for shard keys with no rules.
func AllowAll() Verdict { return Verdict{Safe: true, Level: MatchDefault} }
