package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/seclayer/urlfilter/internal/urlfilter/domain"
)

// DomainPayload is the wire shape of a shard tree for admin writes.
// Optional booleans default to true (fail-open) and rule costs default to
// 1 when omitted, so a sparse payload decodes to a fully specified tree.
type DomainPayload struct {
	Safe  *bool                     `json:"safe"`
	Sub   map[string]*DomainPayload `json:"sub,omitempty" validate:"dive"`
	Paths map[string]*PathPayload   `json:"path,omitempty" validate:"dive"`
	Rules []*QueryRulePayload       `json:"qs,omitempty" validate:"dive"`
}

// PathPayload is one path-trie segment in a DomainPayload.
type PathPayload struct {
	Safe  *bool                   `json:"safe"`
	Paths map[string]*PathPayload `json:"path,omitempty" validate:"dive"`
	Rules []*QueryRulePayload     `json:"qs,omitempty" validate:"dive"`
}

// QueryRulePayload is one query rule in a DomainPayload.
type QueryRulePayload struct {
	Param string `json:"param" validate:"required"`
	Value string `json:"value" validate:"required"`
	Safe  *bool  `json:"safe"`
	Cost  *int   `json:"cost"`
}

// Rule costs must stay positive and sane; the budget math assumes it.
const maxRuleCost = 1000

// DecodePayload parses and structurally checks an admin write body.
// Unknown fields are rejected so typos surface as InvalidPayload instead
// of silently dropping rules.
func DecodePayload(data []byte) (*DomainPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p DomainPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}

// validatePayload runs schema validation plus structural checks the tag
// language can't express (map keys are labels/segments, not free text).
func validatePayload(v *validator.Validate, p *DomainPayload) error {
	if err := v.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return checkDomainKeys(p)
}

func checkDomainKeys(p *DomainPayload) error {
	for name, child := range p.Sub {
		if !validLabel(name) {
			return fmt.Errorf("%w: invalid subdomain label %q", ErrInvalidPayload, name)
		}
		if child == nil {
			return fmt.Errorf("%w: subdomain %q has no body", ErrInvalidPayload, name)
		}
		if err := checkDomainKeys(child); err != nil {
			return err
		}
	}
	if err := checkRules(p.Rules); err != nil {
		return err
	}
	return checkPathKeys(p.Paths)
}

func checkPathKeys(paths map[string]*PathPayload) error {
	for seg, child := range paths {
		if seg == "" || strings.Contains(seg, "/") {
			return fmt.Errorf("%w: invalid path segment %q", ErrInvalidPayload, seg)
		}
		if child == nil {
			return fmt.Errorf("%w: path segment %q has no body", ErrInvalidPayload, seg)
		}
		if err := checkRules(child.Rules); err != nil {
			return err
		}
		if err := checkPathKeys(child.Paths); err != nil {
			return err
		}
	}
	return nil
}

func checkRules(rules []*QueryRulePayload) error {
	for _, r := range rules {
		if r == nil {
			return fmt.Errorf("%w: null query rule", ErrInvalidPayload)
		}
		if r.Cost != nil && (*r.Cost < 1 || *r.Cost > maxRuleCost) {
			return fmt.Errorf("%w: query rule cost %d out of range [1, %d]", ErrInvalidPayload, *r.Cost, maxRuleCost)
		}
	}
	return nil
}

func validLabel(name string) bool {
	return name != "" && !strings.ContainsAny(name, "./:")
}

// Tree converts the payload into a shard tree, applying defaults.
func (p *DomainPayload) Tree() *domain.ShardTree {
	return &domain.ShardTree{Root: p.node()}
}

func (p *DomainPayload) node() *domain.DomainNode {
	n := &domain.DomainNode{
		Safe:  boolOr(p.Safe, true),
		Rules: rulesOf(p.Rules),
	}
	if len(p.Sub) > 0 {
		n.Subdomains = make(map[string]*domain.DomainNode, len(p.Sub))
		for name, child := range p.Sub {
			n.Subdomains[name] = child.node()
		}
	}
	n.Paths = pathsOf(p.Paths)
	return n
}

func pathsOf(paths map[string]*PathPayload) map[string]*domain.PathNode {
	if len(paths) == 0 {
		return nil
	}
	out := make(map[string]*domain.PathNode, len(paths))
	for seg, child := range paths {
		out[seg] = &domain.PathNode{
			Safe:     boolOr(child.Safe, true),
			Children: pathsOf(child.Paths),
			Rules:    rulesOf(child.Rules),
		}
	}
	return out
}

func rulesOf(rules []*QueryRulePayload) []domain.QueryRule {
	if len(rules) == 0 {
		return nil
	}
	out := make([]domain.QueryRule, 0, len(rules))
	for _, r := range rules {
		cost := 1
		if r.Cost != nil {
			cost = *r.Cost
		}
		out = append(out, domain.QueryRule{
			Param: r.Param,
			Value: r.Value,
			Safe:  boolOr(r.Safe, true),
			Cost:  cost,
		})
	}
	return out
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
