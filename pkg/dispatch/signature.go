package dispatch

import (
	"sort"
	"strings"

	"github.com/mitchellh/hashstructure"
)

// Signature is a conjunction of (Expression, Criterion) pairs: a predicate
// over a call's arguments. Keys not present in a Signature are implicitly
// bound to Null (always true). Signatures are immutable once built.
type Signature struct {
	terms []SigTerm
	hash  uint64
}

type SigTerm struct {
	Expr      Expression
	Criterion Criterion
}

// NewSignature builds a Signature from expression/criterion pairs, merging
// repeated expressions with And and dropping terms whose criterion is Null
// (a key bound to Null carries no information, same as an absent key).
func NewSignature(pairs ...SigTerm) (Signature, error) {
	byExpr := map[string]Criterion{}
	var order []string
	exprs := map[string]Expression{}
	for _, p := range pairs {
		key := p.Expr.String()
		if _, ok := byExpr[key]; !ok {
			order = append(order, key)
			exprs[key] = p.Expr
			byExpr[key] = p.Criterion
			continue
		}
		merged, err := And(byExpr[key], p.Criterion)
		if err != nil {
			return Signature{}, err
		}
		byExpr[key] = merged
	}
	sort.Strings(order)
	terms := make([]SigTerm, 0, len(order))
	for _, key := range order {
		c := byExpr[key]
		if c.Equal(Null) {
			continue
		}
		terms = append(terms, SigTerm{Expr: exprs[key], Criterion: c})
	}
	sig := Signature{terms: terms}
	sig.hash = sig.computeHash()
	return sig, nil
}

// Term is the exported constructor for a single signature pair, used to
// build argument lists for NewSignature.
func Term(expr Expression, c Criterion) SigTerm { return SigTerm{Expr: expr, Criterion: c} }

// Terms returns the signature's (expression, criterion) pairs in a stable,
// canonical order (sorted by the expression's string form).
func (s Signature) Terms() []SigTerm { return s.terms }

// And merges two signatures, combining criteria on shared expressions.
func (s Signature) And(other Signature) (Signature, error) {
	pairs := make([]SigTerm, 0, len(s.terms)+len(other.terms))
	pairs = append(pairs, s.terms...)
	pairs = append(pairs, other.terms...)
	return NewSignature(pairs...)
}

// Implies reports whether s is at least as specific as other: every
// expression other constrains, s constrains at least as tightly.
func (s Signature) Implies(other Signature) bool {
	byExpr := map[string]Criterion{}
	for _, t := range s.terms {
		byExpr[t.Expr.String()] = t.Criterion
	}
	for _, t := range other.terms {
		mine, ok := byExpr[t.Expr.String()]
		if !ok {
			mine = Null
		}
		if !mine.Implies(t.Criterion) {
			return false
		}
	}
	return true
}

// Equal reports whether s and other constrain the same expressions to
// value-equal criteria.
func (s Signature) Equal(other Signature) bool {
	if len(s.terms) != len(other.terms) {
		return false
	}
	for i := range s.terms {
		if s.terms[i].Expr.String() != other.terms[i].Expr.String() {
			return false
		}
		if !s.terms[i].Criterion.Equal(other.terms[i].Criterion) {
			return false
		}
	}
	return true
}

// Hash is a canonical hash of the signature's (expression, criterion) pairs,
// computed once at construction via hashstructure, independent of the order
// pairs were supplied in NewSignature.
func (s Signature) Hash() uint64 { return s.hash }

func (s Signature) computeHash() uint64 {
	type flatTerm struct {
		Expr string
		Crit string
	}
	flat := make([]flatTerm, len(s.terms))
	for i, t := range s.terms {
		flat[i] = flatTerm{Expr: t.Expr.String(), Crit: t.Criterion.String()}
	}
	h, err := hashstructure.Hash(flat, nil)
	if err != nil {
		// Hashing a struct of strings cannot fail; this would indicate a
		// hashstructure internal bug, not a data problem.
		panic("dispatch: signature hash: " + err.Error())
	}
	return h
}

func (s Signature) String() string {
	parts := make([]string, len(s.terms))
	for i, t := range s.terms {
		parts[i] = t.Expr.String() + ": " + t.Criterion.String()
	}
	return "Signature(" + strings.Join(parts, ", ") + ")"
}
