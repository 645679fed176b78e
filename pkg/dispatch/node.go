package dispatch

import (
	"reflect"
	"sync"
)

// caseEntry is one rule's signature paired with the case id the compiler
// and combiner use to refer to it.
type caseEntry struct {
	id  int
	sig Signature
}

// dagNode is one node of the compiled dispatch DAG. A leaf carries the
// candidate case ids surviving every branch tested on the path to it, in
// the order they were registered (combine.go re-derives specificity
// ordering from the signatures themselves). A branch node evaluates expr,
// classifies its runtime value into a seed for family, and recurses into
// the child for that seed — built lazily the first time that seed is seen,
// by re-partitioning the node's own active case list. Every candidate
// surviving to a leaf is still re-checked against its full Signature before
// a caller treats it as applicable (see verifyApplicable in generic.go); the DAG
// is a pruning structure, not the sole arbiter of applicability.
type dagNode struct {
	leaf bool
	ids  []int // leaf candidate case ids

	expr      Expression
	family    DispatchFamily
	cases     []caseEntry
	remaining []Expression
	decided   map[string]bool
	cg        *constraintGraph

	mu       sync.Mutex
	children map[string]*dagNode
}

func newLeaf(cases []caseEntry) *dagNode {
	ids := make([]int, len(cases))
	for i, c := range cases {
		ids[i] = c.id
	}
	return &dagNode{leaf: true, ids: ids}
}

// child returns the (lazily compiled) subtree for value's natural seed
// under this branch node's family, creating and caching it on first use.
func (n *dagNode) child(value interface{}) *dagNode {
	seed := classifySeed(n.family, value)
	key := seedKey(seed)

	n.mu.Lock()
	defer n.mu.Unlock()
	if c, ok := n.children[key]; ok {
		return c
	}
	subset := n.partition(seed)
	decided := make(map[string]bool, len(n.decided)+1)
	for k := range n.decided {
		decided[k] = true
	}
	decided[n.expr.String()] = true
	c := compileNode(subset, n.remaining, decided, n.cg)
	if n.children == nil {
		n.children = map[string]*dagNode{}
	}
	n.children[key] = c
	return c
}

// partition keeps the cases whose criterion on n.expr contains seed; a case
// that does not mention n.expr at all is bound to Null there and always
// passes.
func (n *dagNode) partition(seed Seed) []caseEntry {
	out := make([]caseEntry, 0, len(n.cases))
	for _, c := range n.cases {
		crit := criterionFor(c.sig, n.expr)
		if crit.Contains(seed) {
			out = append(out, c)
		}
	}
	return out
}

// criterionFor returns sig's criterion on expr, or Null if sig does not
// mention it.
func criterionFor(sig Signature, expr Expression) Criterion {
	key := expr.String()
	for _, t := range sig.Terms() {
		if t.Expr.String() == key {
			return t.Criterion
		}
	}
	return Null
}

// classifySeed maps a runtime argument value to the seed shape a family's
// Contains expects: the value's reflect.Type for FamilyClass, a singleton
// rangeKey for FamilyInequality, its bool for FamilyTruth, and an identity
// lookup (falling back to IdentityNone, since an arbitrary runtime value
// rarely carries an IdentityHandle of its own) for FamilyIdentity.
func classifySeed(family DispatchFamily, value interface{}) Seed {
	switch family {
	case FamilyClass:
		return typeOf(value)
	case FamilyInequality:
		f, ok := toFloat(value)
		if !ok {
			return rangeKey{Lo: 0, Hi: 0}
		}
		return rangeKey{Lo: f, Hi: f}
	case FamilyTruth:
		return truthy(value)
	case FamilyIdentity:
		if h, ok := value.(IdentityHandle); ok {
			return h
		}
		return IdentityNone
	default:
		return value
	}
}

func typeOf(value interface{}) reflect.Type {
	if value == nil {
		return universalRoot
	}
	return reflect.TypeOf(value)
}
