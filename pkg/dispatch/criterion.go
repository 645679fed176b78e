package dispatch

import (
	"fmt"
	"strings"
)

// DispatchFamily is an opaque tag grouping criteria that share a lookup
// strategy over a common seed space. Two criteria are composable under And
// and Or only if they share a family (NullCriterion is exempt — it is
// compatible with every family).
type DispatchFamily int

const (
	// FamilyNull is NullCriterion's family: compatible with any other.
	FamilyNull DispatchFamily = iota
	// FamilyClass covers ClassCriterion, SubclassCriterion and
	// ProtocolCriterion — all resolved by an MRO-style walk.
	FamilyClass
	// FamilyInequality covers Inequality — resolved by binary search over
	// a merged, ordered range list.
	FamilyInequality
	// FamilyTruth covers TruthCriterion — a two-branch boolean dispatch.
	FamilyTruth
	// FamilyIdentity covers IdentityCriterion — resolved by pointer/id
	// lookup with a None-sentinel fallback.
	FamilyIdentity
)

func (f DispatchFamily) String() string {
	switch f {
	case FamilyNull:
		return "null"
	case FamilyClass:
		return "class"
	case FamilyInequality:
		return "inequality"
	case FamilyTruth:
		return "truth"
	case FamilyIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// Seed is a canonical key placed into a CriterionIndex, used by a family's
// dispatch function to pick the right branch in O(log n) or O(1).
type Seed = interface{}

// IndexView exposes a CriterionIndex's current seed list to a criterion that
// needs it to compute new candidate seeds (only Inequality does, to split
// the merged range list around its breakpoint).
type IndexView interface {
	AllSeeds() []Seed
}

// Criterion is a decidable predicate over a single expression's value, with
// a seed and dispatch family for indexing. Implementations must be
// immutable and safely shared across goroutines.
type Criterion interface {
	// Family reports the dispatch family this criterion belongs to.
	Family() DispatchFamily
	// Contains reports whether this criterion is true of the given seed.
	Contains(seed Seed) bool
	// Seeds returns the seeds this criterion contributes to an index,
	// given the index's current view (only meaningful for Inequality;
	// other families return a fixed, view-independent set).
	Seeds(view IndexView) []Seed
	// MatchingSeeds filters allSeeds down to those this criterion
	// contains — the "seeds for which this case's criterion is true".
	MatchingSeeds(allSeeds []Seed) []Seed
	// Implies reports whether this criterion implies other: every seed
	// the receiver is true of, other is also true of. The check is sound
	// but not necessarily complete.
	Implies(other Criterion) bool
	// Invert builds the logical negation of this criterion.
	Invert() Criterion
	// Equal reports value equality.
	Equal(other Criterion) bool
	// Subscribe registers onChange to be called whenever external mutable
	// state this criterion depends on changes (only ProtocolCriterion
	// depends on anything external). It returns an idempotent
	// unsubscribe function; criteria with no external dependency return
	// a no-op.
	Subscribe(onChange func()) (unsubscribe func())
	// String renders a canonical textual form, used for signature hashing
	// and debug output.
	String() string
}

func defaultMatchingSeeds(c Criterion, allSeeds []Seed) []Seed {
	out := make([]Seed, 0, len(allSeeds))
	for _, s := range allSeeds {
		if c.Contains(s) {
			out = append(out, s)
		}
	}
	return out
}

func noopSubscribe(func()) func() { return func() {} }

// --- NullCriterion ---------------------------------------------------------

// nullCriterion is true everywhere: the identity for And, and the absorber
// that makes every other criterion imply it.
type nullCriterion struct{}

// Null is the criterion that is true for every value: the implicit
// criterion at any key a Signature does not mention.
var Null Criterion = nullCriterion{}

func (nullCriterion) Family() DispatchFamily          { return FamilyNull }
func (nullCriterion) Contains(Seed) bool              { return true }
func (nullCriterion) Seeds(IndexView) []Seed          { return nil }
func (nullCriterion) MatchingSeeds(all []Seed) []Seed { return append([]Seed(nil), all...) }
func (nullCriterion) Implies(other Criterion) bool {
	_, isNull := other.(nullCriterion)
	return isNull
}
func (nullCriterion) Invert() Criterion                        { return neverCriterion{} }
func (nullCriterion) Equal(other Criterion) bool                { _, ok := other.(nullCriterion); return ok }
func (nullCriterion) Subscribe(func()) func()                    { return noopSubscribe(nil) }
func (nullCriterion) String() string                             { return "Null" }

// neverCriterion (¬Null) is true nowhere. It exists only so Invert is total;
// it shares FamilyNull so it composes freely, same as Null.
type neverCriterion struct{}

// Never is the criterion that is true for no value: And's absorbing
// element and Or's identity, the dual of Null.
var Never Criterion = neverCriterion{}

func (neverCriterion) Family() DispatchFamily          { return FamilyNull }
func (neverCriterion) Contains(Seed) bool              { return false }
func (neverCriterion) Seeds(IndexView) []Seed          { return nil }
func (neverCriterion) MatchingSeeds([]Seed) []Seed     { return nil }
func (neverCriterion) Implies(Criterion) bool          { return true }
func (neverCriterion) Invert() Criterion               { return nullCriterion{} }
func (neverCriterion) Equal(other Criterion) bool      { _, ok := other.(neverCriterion); return ok }
func (neverCriterion) Subscribe(func()) func()         { return noopSubscribe(nil) }
func (neverCriterion) String() string                  { return "Never" }

// --- TruthCriterion ---------------------------------------------------------

// TruthCriterion dispatches on the boolean coercion of an expression's
// value. It has exactly two seeds, true and false.
type TruthCriterion struct{ Polarity bool }

// NewTruth builds a TruthCriterion matching values whose truthiness equals
// polarity.
func NewTruth(polarity bool) TruthCriterion { return TruthCriterion{Polarity: polarity} }

func (c TruthCriterion) Family() DispatchFamily { return FamilyTruth }
func (c TruthCriterion) Contains(seed Seed) bool {
	b, ok := seed.(bool)
	return ok && b == c.Polarity
}
func (c TruthCriterion) Seeds(IndexView) []Seed { return []Seed{true, false} }
func (c TruthCriterion) MatchingSeeds(all []Seed) []Seed {
	return defaultMatchingSeeds(c, all)
}
func (c TruthCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	o, ok := other.(TruthCriterion)
	return ok && o.Polarity == c.Polarity
}
func (c TruthCriterion) Invert() Criterion         { return TruthCriterion{Polarity: !c.Polarity} }
func (c TruthCriterion) Equal(other Criterion) bool {
	o, ok := other.(TruthCriterion)
	return ok && o.Polarity == c.Polarity
}
func (c TruthCriterion) Subscribe(func()) func() { return noopSubscribe(nil) }
func (c TruthCriterion) String() string          { return fmt.Sprintf("Truth(%v)", c.Polarity) }

// --- And / Or / Not ----------------------------------------------------

type andCriterion struct{ children []Criterion }
type orCriterion struct{ children []Criterion }

// And builds the conjunction of criteria, flattening nested Ands, dropping
// Null members (the And identity: P ∧ True = P) and short-circuiting to
// Never the moment one is seen (the And absorber: P ∧ False = False), then
// eliding to the sole remaining child when only one is left. All non-Null
// children must share a dispatch family, or ErrCriterionFamilyMismatch is
// returned.
func And(criteria ...Criterion) (Criterion, error) {
	flat, err := flattenFamily(criteria, func(c Criterion) []Criterion {
		if a, ok := c.(andCriterion); ok {
			return a.children
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	kept := make([]Criterion, 0, len(flat))
	for _, c := range flat {
		if _, ok := c.(neverCriterion); ok {
			return neverCriterion{}, nil
		}
		if c.Equal(Null) {
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return Null, nil
	case 1:
		return kept[0], nil
	default:
		return andCriterion{children: kept}, nil
	}
}

// Or builds the disjunction of criteria, flattening nested Ors, dropping
// Never members (the Or identity: P ∨ False = P) and short-circuiting to
// Null the moment one is seen (the Or absorber: P ∨ True = True), then
// eliding to the sole remaining child when only one is left. All children
// must share a dispatch family, or ErrCriterionFamilyMismatch is returned.
func Or(criteria ...Criterion) (Criterion, error) {
	flat, err := flattenFamily(criteria, func(c Criterion) []Criterion {
		if o, ok := c.(orCriterion); ok {
			return o.children
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	kept := make([]Criterion, 0, len(flat))
	for _, c := range flat {
		if c.Equal(Null) {
			return Null, nil
		}
		if _, ok := c.(neverCriterion); ok {
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return neverCriterion{}, nil
	case 1:
		return kept[0], nil
	default:
		return orCriterion{children: kept}, nil
	}
}

func flattenFamily(criteria []Criterion, expand func(Criterion) []Criterion) ([]Criterion, error) {
	var flat []Criterion
	var family DispatchFamily
	familySet := false
	var walk func(Criterion)
	walk = func(c Criterion) {
		if nested := expand(c); nested != nil {
			for _, n := range nested {
				walk(n)
			}
			return
		}
		flat = append(flat, c)
	}
	for _, c := range criteria {
		walk(c)
	}
	out := flat[:0]
	for _, c := range flat {
		if c.Family() == FamilyNull {
			// Null and its negation participate freely; they never
			// constrain the shared family of the other children.
			out = append(out, c)
			continue
		}
		if !familySet {
			family, familySet = c.Family(), true
		} else if c.Family() != family {
			return nil, ErrCriterionFamilyMismatch.New(criteria)
		}
		out = append(out, c)
	}
	return out, nil
}

func (c andCriterion) Family() DispatchFamily {
	for _, ch := range c.children {
		if ch.Family() != FamilyNull {
			return ch.Family()
		}
	}
	return FamilyNull
}
func (c andCriterion) Contains(seed Seed) bool {
	for _, ch := range c.children {
		if !ch.Contains(seed) {
			return false
		}
	}
	return true
}
func (c andCriterion) Seeds(view IndexView) []Seed {
	var out []Seed
	for _, ch := range c.children {
		out = append(out, ch.Seeds(view)...)
	}
	return out
}
func (c andCriterion) MatchingSeeds(all []Seed) []Seed { return defaultMatchingSeeds(c, all) }
func (c andCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	if o, ok := other.(andCriterion); ok {
		for _, oc := range o.children {
			if !c.Implies(oc) {
				return false
			}
		}
		return true
	}
	for _, ch := range c.children {
		if ch.Implies(other) {
			return true
		}
	}
	return false
}
func (c andCriterion) Invert() Criterion {
	inverted := make([]Criterion, len(c.children))
	for i, ch := range c.children {
		inverted[i] = ch.Invert()
	}
	or, _ := Or(inverted...)
	return or
}
func (c andCriterion) Equal(other Criterion) bool {
	o, ok := other.(andCriterion)
	if !ok || len(o.children) != len(c.children) {
		return false
	}
	for i := range c.children {
		if !c.children[i].Equal(o.children[i]) {
			return false
		}
	}
	return true
}
func (c andCriterion) Subscribe(onChange func()) func() {
	return subscribeAll(c.children, onChange)
}
func (c andCriterion) String() string {
	parts := make([]string, len(c.children))
	for i, ch := range c.children {
		parts[i] = ch.String()
	}
	return "And(" + strings.Join(parts, ", ") + ")"
}

func (c orCriterion) Family() DispatchFamily {
	for _, ch := range c.children {
		if ch.Family() != FamilyNull {
			return ch.Family()
		}
	}
	return FamilyNull
}
func (c orCriterion) Contains(seed Seed) bool {
	for _, ch := range c.children {
		if ch.Contains(seed) {
			return true
		}
	}
	return false
}
func (c orCriterion) Seeds(view IndexView) []Seed {
	var out []Seed
	for _, ch := range c.children {
		out = append(out, ch.Seeds(view)...)
	}
	return out
}
func (c orCriterion) MatchingSeeds(all []Seed) []Seed { return defaultMatchingSeeds(c, all) }
func (c orCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	for _, ch := range c.children {
		if !ch.Implies(other) {
			return false
		}
	}
	return true
}
func (c orCriterion) Invert() Criterion {
	inverted := make([]Criterion, len(c.children))
	for i, ch := range c.children {
		inverted[i] = ch.Invert()
	}
	and, _ := And(inverted...)
	return and
}
func (c orCriterion) Equal(other Criterion) bool {
	o, ok := other.(orCriterion)
	if !ok || len(o.children) != len(c.children) {
		return false
	}
	for i := range c.children {
		if !c.children[i].Equal(o.children[i]) {
			return false
		}
	}
	return true
}
func (c orCriterion) Subscribe(onChange func()) func() {
	return subscribeAll(c.children, onChange)
}
func (c orCriterion) String() string {
	parts := make([]string, len(c.children))
	for i, ch := range c.children {
		parts[i] = ch.String()
	}
	return "Or(" + strings.Join(parts, ", ") + ")"
}

func subscribeAll(children []Criterion, onChange func()) func() {
	unsubs := make([]func(), 0, len(children))
	for _, ch := range children {
		unsubs = append(unsubs, ch.Subscribe(onChange))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Not builds the logical negation of c, distributing over And/Or (De
// Morgan), collapsing double negation, and flipping TruthCriterion polarity
// directly rather than wrapping.
func Not(c Criterion) Criterion {
	return c.Invert()
}
