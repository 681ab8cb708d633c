package domain

import "time"

// QueryRule matches one query parameter name/value pair at a path node.
// Cost is the comparison budget this rule consumes when evaluated; it
// defaults to 1 at payload decode time.
type QueryRule struct {
	Param string `json:"param"`
	Value string `json:"value"`
	Safe  bool   `json:"safe"`
	Cost  int    `json:"cost"`
}

// PathNode is one segment of a URL path trie. Absence of a child for a
// requested segment means "no explicit rule at this depth", not a verdict.
type PathNode struct {
	Safe     bool                 `json:"safe"`
	Children map[string]*PathNode `json:"path,omitempty"`
	Rules    []QueryRule          `json:"qs,omitempty"`
}

// DomainNode is one authority under a shard. Its own Safe flag is
// independent of its children: each level is checked on its own during
// classification. Paths holds the children of the implicit root path "/";
// Rules holds query rules attached at the root path itself.
type DomainNode struct {
	Safe       bool                   `json:"safe"`
	Subdomains map[string]*DomainNode `json:"sub,omitempty"`
	Paths      map[string]*PathNode   `json:"path,omitempty"`
	Rules      []QueryRule            `json:"qs,omitempty"`
}

// ShardTree is the full rule tree for one shard key. Trees handed to the
// shard cache are immutable: mutations go through Clone and a whole-tree
// swap so concurrent readers never observe partial updates.
type ShardTree struct {
	Root    *DomainNode `json:"tree"`
	Updated time.Time   `json:"-"`
}

// NewShardTree returns a tree whose root carries the given safety flag and
// no rules.
func NewShardTree(safe bool) *ShardTree {
	return &ShardTree{Root: &DomainNode{Safe: safe}}
}

// DefaultTree is the fail-open tree reported for shard keys never written.
func DefaultTree() *ShardTree { return NewShardTree(true) }

// FindDomain walks the subdomain chain and returns the deepest node that
// exists plus how many segments matched. A partial match is not an error:
// the deepest node's flag is the effective domain-level fallback.
func (t *ShardTree) FindDomain(subdomains []string) (*DomainNode, int) {
	node := t.Root
	depth := 0
	for _, seg := range subdomains {
		child, ok := node.Subdomains[seg]
		if !ok {
			break
		}
		node = child
		depth++
	}
	return node, depth
}

// FindPath walks the path trie under d and returns the deepest matched
// node and its depth. It returns (nil, 0) when no segment matched; rules
// attached at the root path live on d itself.
func (d *DomainNode) FindPath(segments []string) (*PathNode, int) {
	children := d.Paths
	var node *PathNode
	depth := 0
	for _, seg := range segments {
		child, ok := children[seg]
		if !ok {
			break
		}
		node = child
		children = child.Children
		depth++
	}
	return node, depth
}

// Clone returns a deep copy of the tree. Admin mutations clone, edit the
// copy, and swap it into the cache as a whole.
func (t *ShardTree) Clone() *ShardTree {
	if t == nil {
		return nil
	}
	return &ShardTree{Root: t.Root.clone(), Updated: t.Updated}
}

func (d *DomainNode) clone() *DomainNode {
	if d == nil {
		return nil
	}
	out := &DomainNode{Safe: d.Safe, Rules: cloneRules(d.Rules)}
	if d.Subdomains != nil {
		out.Subdomains = make(map[string]*DomainNode, len(d.Subdomains))
		for name, child := range d.Subdomains {
			out.Subdomains[name] = child.clone()
		}
	}
	out.Paths = clonePaths(d.Paths)
	return out
}

func (p *PathNode) clone() *PathNode {
	if p == nil {
		return nil
	}
	return &PathNode{Safe: p.Safe, Children: clonePaths(p.Children), Rules: cloneRules(p.Rules)}
}

func clonePaths(m map[string]*PathNode) map[string]*PathNode {
	if m == nil {
		return nil
	}
	out := make(map[string]*PathNode, len(m))
	for seg, child := range m {
		out[seg] = child.clone()
	}
	return out
}

func cloneRules(rules []QueryRule) []QueryRule {
	if rules == nil {
		return nil
	}
	out := make([]QueryRule, len(rules))
	copy(out, rules)
	return out
}

// EnsurePath creates any missing nodes along segments (safe by default)
// and returns the final node. Empty segments address the root, for which
// there is no PathNode; callers use the DomainNode directly.
func (t *ShardTree) EnsurePath(segments []string) *PathNode {
	if len(segments) == 0 {
		return nil
	}
	if t.Root.Paths == nil {
		t.Root.Paths = make(map[string]*PathNode)
	}
	children := t.Root.Paths
	var node *PathNode
	for _, seg := range segments {
		child, ok := children[seg]
		if !ok {
			child = &PathNode{Safe: true}
			children[seg] = child
		}
		if child.Children == nil {
			child.Children = make(map[string]*PathNode)
		}
		node = child
		children = child.Children
	}
	return node
}

// PutQueryRule appends rule at the node addressed by segments, creating
// the path as needed. Re-putting an identical rule is a no-op on state.
func (t *ShardTree) PutQueryRule(segments []string, rule QueryRule) {
	if len(segments) == 0 {
		for _, r := range t.Root.Rules {
			if r == rule {
				return
			}
		}
		t.Root.Rules = append(t.Root.Rules, rule)
		return
	}
	node := t.EnsurePath(segments)
	for _, r := range node.Rules {
		if r == rule {
			return
		}
	}
	node.Rules = append(node.Rules, rule)
}

// DeletePath removes the node addressed by segments and all of its
// descendants. Deleting the root clears the whole path trie and the root
// rules. Returns false when the addressed node does not exist.
func (t *ShardTree) DeletePath(segments []string) bool {
	if len(segments) == 0 {
		found := t.Root.Paths != nil || t.Root.Rules != nil
		t.Root.Paths = nil
		t.Root.Rules = nil
		return found
	}
	children := t.Root.Paths
	for _, seg := range segments[:len(segments)-1] {
		child, ok := children[seg]
		if !ok {
			return false
		}
		children = child.Children
	}
	last := segments[len(segments)-1]
	if _, ok := children[last]; !ok {
		return false
	}
	delete(children, last)
	return true
}

// DeleteQueryRules removes rules matching param (and value, when value is
// non-empty) at the node addressed by segments. It reports how many rules
// were removed and whether the addressed node exists at all.
func (t *ShardTree) DeleteQueryRules(segments []string, param, value string) (int, bool) {
	var rules *[]QueryRule
	if len(segments) == 0 {
		rules = &t.Root.Rules
	} else {
		node, depth := t.Root.FindPath(segments)
		if depth != len(segments) {
			return 0, false
		}
		rules = &node.Rules
	}
	kept := (*rules)[:0]
	removed := 0
	for _, r := range *rules {
		if r.Param == param && (value == "" || r.Value == value) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	*rules = kept
	return removed, true
}
