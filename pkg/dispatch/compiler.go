package dispatch

import (
	"context"

	"github.com/gitrdm/dispatchkit/internal/pool"
)

// compileNode builds the root (or a lazily-triggered subtree's root) of the
// decision DAG for the given active case set. It picks, among the
// expressions the constraint graph says are safe to test given what's
// already decided on this path, the one whose partition of the active
// cases has the smallest worst-case bucket (best_split): the expression
// most likely to separate the cases with the fewest further tests.
func compileNode(cases []caseEntry, remaining []Expression, decided map[string]bool, cg *constraintGraph) *dagNode {
	if len(cases) <= 1 {
		return newLeaf(cases)
	}

	ready := cg.successors(remaining, decided)
	best, bestFamily, bestScore := pickSplit(cases, ready, cg.pool)
	if best == nil || bestScore >= len(cases) {
		// No candidate expression separates the cases any further (every
		// remaining expression is Null, or pinned to the same criterion,
		// for the whole active set); leave the rest to method combination
		// and the leaf-level signature re-check.
		return newLeaf(cases)
	}

	nextRemaining := make([]Expression, 0, len(remaining)-1)
	for _, e := range remaining {
		if e.String() != best.String() {
			nextRemaining = append(nextRemaining, e)
		}
	}

	return &dagNode{
		expr:      best,
		family:    bestFamily,
		cases:     cases,
		remaining: nextRemaining,
		decided:   decided,
		cg:        cg,
	}
}

// splitParallelThreshold is the smallest ready-candidate count worth handing
// to a worker pool: below it, goroutine dispatch overhead dwarfs the work
// being parallelized.
const splitParallelThreshold = 8

// splitCandidate is one expression's best_split score, computed independently
// of every other candidate — which is what lets evaluateCandidate run
// concurrently across a pool.
type splitCandidate struct {
	expr      Expression
	family    DispatchFamily
	score     int
	seedCount int
	ok        bool
}

// evaluateCandidate scores expr as a split point for cases: the size of the
// largest bucket its partition would produce, and how many distinct seeds it
// has. A zero-value, ok=false result means expr carries no usable
// information for this case set (Null everywhere, mixed families, or a
// partition that doesn't actually separate any case).
func evaluateCandidate(cases []caseEntry, expr Expression) splitCandidate {
	family, ok := dominantFamily(cases, expr)
	if !ok {
		return splitCandidate{}
	}
	idx := newCriterionIndex(family)
	for _, c := range cases {
		idx.Add(c.id, criterionFor(c.sig, expr))
	}
	seeds := idx.Seeds()
	if len(seeds) == 0 {
		return splitCandidate{}
	}
	maxBucket := 0
	for _, s := range seeds {
		if n := idx.CountFor(s); n > maxBucket {
			maxBucket = n
		}
	}
	if maxBucket >= len(cases) {
		return splitCandidate{}
	}
	return splitCandidate{expr: expr, family: family, score: maxBucket, seedCount: len(seeds), ok: true}
}

// pickSplit evaluates every candidate expression and returns the one whose
// index-based partition of cases minimizes the largest resulting bucket,
// breaking ties by fewer distinct seeds and then by the candidate's
// position in ready (stable, deterministic order). When a compile pool is
// configured and there are enough candidates to make it worthwhile, every
// candidate's score is computed concurrently; the reduction to a single
// winner afterward is sequential and so stays deterministic regardless.
func pickSplit(cases []caseEntry, ready []Expression, p *pool.Pool) (Expression, DispatchFamily, int) {
	results := make([]splitCandidate, len(ready))
	if p != nil && len(ready) >= splitParallelThreshold {
		indices := make([]int, len(ready))
		for i := range indices {
			indices[i] = i
		}
		err := pool.SubmitAll(context.Background(), p, indices, func(i int) error {
			results[i] = evaluateCandidate(cases, ready[i])
			return nil
		})
		if err != nil {
			// The pool was shut down mid-compile, or the context was
			// cancelled; fall back to evaluating sequentially rather than
			// failing a compile that has no error return of its own.
			for i, expr := range ready {
				results[i] = evaluateCandidate(cases, expr)
			}
		}
	} else {
		for i, expr := range ready {
			results[i] = evaluateCandidate(cases, expr)
		}
	}

	var bestExpr Expression
	var bestFamily DispatchFamily
	bestScore := len(cases) + 1
	bestSeedCount := -1
	for _, r := range results {
		if !r.ok {
			continue
		}
		if bestExpr == nil || r.score < bestScore || (r.score == bestScore && r.seedCount < bestSeedCount) {
			bestExpr, bestFamily, bestScore, bestSeedCount = r.expr, r.family, r.score, r.seedCount
		}
	}
	return bestExpr, bestFamily, bestScore
}

// dominantFamily reports the dispatch family of expr's non-Null criteria
// across cases. An expression with no non-Null criterion anywhere carries
// no information and is skipped; one with criteria from more than one
// family can't share a single index and is also skipped (this can only
// happen if two unrelated rule sets independently constrain the same
// expression with incompatible criterion kinds).
func dominantFamily(cases []caseEntry, expr Expression) (DispatchFamily, bool) {
	family := FamilyNull
	set := false
	for _, c := range cases {
		crit := criterionFor(c.sig, expr)
		if crit.Family() == FamilyNull {
			continue
		}
		if !set {
			family, set = crit.Family(), true
			continue
		}
		if crit.Family() != family {
			return FamilyNull, false
		}
	}
	return family, set
}
