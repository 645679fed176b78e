package dispatch

import "github.com/gitrdm/dispatchkit/internal/pool"

// constraintGraph orders expressions so that any expression appearing as an
// AttrGetter target (e.g. `x.Field`) is only ever tested once its guard
// (`x` itself, under whatever criterion establishes it's safe to read from)
// is already known active — mirroring the predecessor ordering that keeps
// compiled dispatch from reading an attribute off an object of the wrong
// shape before the type check that guards it has run.
//
// It also carries the optional worker pool a GenericFunction was configured
// with (WithCompilePool), so every node compiled against this graph — root
// or lazily-materialized child — can score best_split candidates for a
// large ready set concurrently instead of one at a time.
type constraintGraph struct {
	predecessors map[string][]string // expr key -> keys that must be decided first
	pool         *pool.Pool
}

func newConstraintGraph(exprs []Expression, p *pool.Pool) *constraintGraph {
	g := &constraintGraph{predecessors: map[string][]string{}, pool: p}
	for _, e := range exprs {
		g.addExpr(e)
	}
	return g
}

func (g *constraintGraph) addExpr(e Expression) {
	key := e.String()
	if _, ok := g.predecessors[key]; ok {
		return
	}
	var preds []string
	if ae, ok := e.(attributeExpr); ok {
		preds = append(preds, ae.child.String())
		g.addExpr(ae.child)
	}
	g.predecessors[key] = preds
}

// successors returns, among candidates, the expression keys whose
// predecessors are all already present in active — i.e. the expressions
// that are safe to branch on next given what the DAG has already decided.
func (g *constraintGraph) successors(candidates []Expression, active map[string]bool) []Expression {
	var out []Expression
	for _, c := range candidates {
		key := c.String()
		ready := true
		for _, p := range g.predecessors[key] {
			if !active[p] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, c)
		}
	}
	return out
}
