package dispatch

import (
	"fmt"
	"math"
	"reflect"
)

// IneqOp is an inequality operator over a totally ordered domain.
type IneqOp int

const (
	OpLT IneqOp = iota
	OpLE
	OpEQ
	OpNE
	OpGE
	OpGT
)

func (op IneqOp) String() string {
	switch op {
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpEQ:
		return "="
	case OpNE:
		return "!="
	case OpGE:
		return ">="
	case OpGT:
		return ">"
	default:
		return "?"
	}
}

// rangeKey is a seed for the inequality family over the domain extended with
// ±∞: Lo == Hi denotes the singleton point, otherwise the open interval
// (Lo, Hi).
type rangeKey struct{ Lo, Hi float64 }

// Inequality is a range test over a totally ordered domain extended with
// sentinels -∞, +∞. Its index seeds are the open intervals the domain splits
// into around V, merged with whatever ranges are already in the index.
type Inequality struct {
	Op IneqOp
	V  float64
}

// NewInequality builds an Inequality criterion, rejecting any operator
// outside {<,<=,=,!=,>=,>}.
func NewInequality(op IneqOp, v float64) (Inequality, error) {
	switch op {
	case OpLT, OpLE, OpEQ, OpNE, OpGE, OpGT:
		return Inequality{Op: op, V: v}, nil
	default:
		return Inequality{}, ErrInvalidInequalityOperator.New(fmt.Sprintf("%d", int(op)))
	}
}

// toFloat coerces common numeric kinds to float64 for range comparison.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), true
		case reflect.Float32, reflect.Float64:
			return rv.Float(), true
		}
		return 0, false
	}
}

func (c Inequality) Family() DispatchFamily { return FamilyInequality }

// Contains reports whether the (already atomic) seed range lies entirely
// within the region this inequality selects. Seeds are always produced by
// Seeds/the index's merge step, so they are either a singleton (Lo==Hi) or
// an open interval with no interior breakpoint.
func (c Inequality) Contains(seed Seed) bool {
	r, ok := seed.(rangeKey)
	if !ok {
		return false
	}
	if r.Lo == r.Hi {
		v0 := r.Lo
		switch c.Op {
		case OpLT:
			return v0 < c.V
		case OpLE:
			return v0 <= c.V
		case OpEQ:
			return v0 == c.V
		case OpNE:
			return v0 != c.V
		case OpGE:
			return v0 >= c.V
		case OpGT:
			return v0 > c.V
		}
		return false
	}
	switch c.Op {
	case OpLT, OpLE:
		return r.Hi <= c.V
	case OpGE, OpGT:
		return r.Lo >= c.V
	case OpEQ:
		return false
	case OpNE:
		return r.Hi <= c.V || r.Lo >= c.V
	}
	return false
}

// localSeeds is the fixed three-way split of the real line around V,
// ignoring whatever is already present in an index — used both as the
// unmerged contribution to Seeds and as the sample set for Implies.
func (c Inequality) localSeeds() []Seed {
	return []Seed{
		rangeKey{Lo: math.Inf(-1), Hi: c.V},
		rangeKey{Lo: c.V, Hi: c.V},
		rangeKey{Lo: c.V, Hi: math.Inf(1)},
	}
}

func (c Inequality) Seeds(view IndexView) []Seed {
	if view == nil {
		return c.localSeeds()
	}
	return mergeRangeSeeds(view.AllSeeds(), c.V)
}

func (c Inequality) MatchingSeeds(all []Seed) []Seed { return defaultMatchingSeeds(c, all) }

// Implies uses the seed-containment shortcut of spec.md §4.2: sound but not
// complete. It samples both criteria's own local seeds and checks that
// every sample where the receiver is true, other is true too.
func (c Inequality) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	o, ok := other.(Inequality)
	if !ok {
		return false
	}
	samples := append(append([]Seed{}, c.localSeeds()...), o.localSeeds()...)
	for _, s := range samples {
		if c.Contains(s) && !other.Contains(s) {
			return false
		}
	}
	return true
}

func (c Inequality) Invert() Criterion {
	inv := map[IneqOp]IneqOp{OpLT: OpGE, OpLE: OpGT, OpGE: OpLT, OpGT: OpLE, OpEQ: OpNE, OpNE: OpEQ}
	return Inequality{Op: inv[c.Op], V: c.V}
}
func (c Inequality) Equal(other Criterion) bool {
	o, ok := other.(Inequality)
	return ok && o.Op == c.Op && o.V == c.V
}
func (c Inequality) Subscribe(func()) func() { return noopSubscribe(nil) }
func (c Inequality) String() string          { return fmt.Sprintf("Inequality(%s %v)", c.Op, c.V) }

// mergeRangeSeeds splits existing into pieces around v, inserting the
// singleton {v,v} and the two open flanks, so the returned list has no piece
// straddling v. It is pure and idempotent: calling it again with v already a
// breakpoint is a no-op. The index only appends the returned seeds, so a
// range it held before the split stays in its seed list.
func mergeRangeSeeds(existing []Seed, v float64) []Seed {
	ranges := make([]rangeKey, 0, len(existing))
	for _, s := range existing {
		if r, ok := s.(rangeKey); ok {
			ranges = append(ranges, r)
		}
	}
	if len(ranges) == 0 {
		ranges = []rangeKey{{Lo: math.Inf(-1), Hi: math.Inf(1)}}
	}

	out := make([]rangeKey, 0, len(ranges)+2)
	inserted := false
	for _, r := range ranges {
		if r.Lo == r.Hi {
			out = append(out, r)
			continue
		}
		if v > r.Lo && v < r.Hi {
			out = append(out, rangeKey{Lo: r.Lo, Hi: v})
			out = append(out, rangeKey{Lo: v, Hi: v})
			out = append(out, rangeKey{Lo: v, Hi: r.Hi})
			inserted = true
			continue
		}
		if v == r.Lo || v == r.Hi {
			out = append(out, r)
			continue
		}
		out = append(out, r)
	}
	if !inserted {
		hasSingleton := false
		for _, r := range out {
			if r.Lo == r.Hi && r.Lo == v {
				hasSingleton = true
			}
		}
		if !hasSingleton {
			out = append(out, rangeKey{Lo: v, Hi: v})
		}
	}

	seeds := make([]Seed, len(out))
	for i, r := range out {
		seeds[i] = r
	}
	return seeds
}
