package dispatch

import "sort"

// Qualifier tags a method's role in combination, mirroring CLOS-style
// generic functions: around methods wrap the whole call, before/after
// methods run for side effects around the primary chain, and primary
// methods are the chain next_method actually walks.
type Qualifier int

const (
	Primary Qualifier = iota
	Before
	After
	Around
)

func (q Qualifier) String() string {
	switch q {
	case Primary:
		return "primary"
	case Before:
		return "before"
	case After:
		return "after"
	case Around:
		return "around"
	default:
		return "unknown"
	}
}

// NextFunc invokes the next-less-specific method in the same qualifier's
// chain (or the chain's terminal behavior at the end of the chain).
type NextFunc func(args []interface{}) (interface{}, error)

// MethodFunc is a registered rule body. next is never nil: at the end of the
// primary chain it returns ErrNoApplicableMethods (or the
// WithNoApplicableDefault result); before and after methods get a next that
// returns (nil, nil); the last around method's next runs the before methods,
// the primary chain and the after methods.
type MethodFunc func(next NextFunc, args []interface{}) (interface{}, error)

// Method is one registered rule.
type Method struct {
	ID        int
	Sig       Signature
	Qualifier Qualifier
	Fn        MethodFunc
}

// orderBySpecificity topologically layers methods by signature implication:
// each round's winners are the methods no remaining method strictly implies
// (i.e. no remaining method is strictly more specific). Mutually
// equivalent signatures at the same layer are ordered by registration id
// for determinism; a layer with more than one winner whose signatures are
// not mutually equivalent is a genuine ambiguity.
func orderBySpecificity(methods []Method) ([]Method, error) {
	remaining := append([]Method(nil), methods...)
	ordered := make([]Method, 0, len(methods))

	for len(remaining) > 0 {
		var winners []Method
		for _, p := range remaining {
			mostSpecific := true
			for _, q := range remaining {
				if q.ID == p.ID {
					continue
				}
				if q.Sig.Implies(p.Sig) && !p.Sig.Implies(q.Sig) {
					mostSpecific = false
					break
				}
			}
			if mostSpecific {
				winners = append(winners, p)
			}
		}
		if len(winners) == 0 {
			// Every remaining method cyclically implies some other (can
			// only happen with bugged Criterion.Implies implementations);
			// fall back to treating everyone as tied rather than looping.
			winners = remaining
		}
		if len(winners) > 1 {
			for _, w := range winners[1:] {
				if !(w.Sig.Implies(winners[0].Sig) && winners[0].Sig.Implies(w.Sig)) {
					return nil, ErrAmbiguousMethod.New(winners[0].ID, w.ID)
				}
			}
		}
		sort.Slice(winners, func(i, j int) bool { return winners[i].ID < winners[j].ID })
		winner := winners[0]
		ordered = append(ordered, winner)

		next := remaining[:0:0]
		for _, r := range remaining {
			if r.ID != winner.ID {
				next = append(next, r)
			}
		}
		remaining = next
	}
	return ordered, nil
}

// combine builds the single callable a dispatch resolves to: around methods
// (most-specific-first, real next_method chaining) wrapping before methods
// (most-specific-first, side-effecting), the primary chain (most-specific
// first, real next_method chaining, terminating in ErrNoApplicableMethods
// or a configured default), and after methods (least-specific-first).
func combine(arounds, befores, primaries, afters []Method, args []interface{}, noApplicable NextFunc) (interface{}, error) {
	primaryChain := buildChain(primaries, func(args []interface{}) (interface{}, error) {
		return noApplicable(args)
	})

	core := func(args []interface{}) (interface{}, error) {
		for _, b := range befores {
			if _, err := b.Fn(terminalNext, args); err != nil {
				return nil, err
			}
		}
		result, err := primaryChain(args)
		for i := len(afters) - 1; i >= 0; i-- {
			if _, aerr := afters[i].Fn(terminalNext, args); aerr != nil && err == nil {
				err = aerr
			}
		}
		return result, err
	}

	aroundChain := buildChain(arounds, core)
	return aroundChain(args)
}

func terminalNext([]interface{}) (interface{}, error) { return nil, nil }

// buildChain threads methods (already ordered most-specific-first) via
// next_method, with terminal calling base once the chain is exhausted.
func buildChain(methods []Method, base NextFunc) NextFunc {
	next := base
	for i := len(methods) - 1; i >= 0; i-- {
		m := methods[i]
		captured := next
		next = func(args []interface{}) (interface{}, error) {
			return m.Fn(captured, args)
		}
	}
	return next
}
