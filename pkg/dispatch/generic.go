package dispatch

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/gitrdm/dispatchkit/internal/pool"
)

// callFrame is one call's actual arguments: positional, and optionally
// named for Arguments built with ArgNamed/ArgAtNamed.
type callFrame struct {
	positional []interface{}
	named      map[string]interface{}
}

func (f callFrame) resolve(a Argument) (interface{}, error) {
	if a.HasIndex {
		if a.Index < 0 || a.Index >= len(f.positional) {
			return nil, fmt.Errorf("dispatch: argument index %d out of range (%d args)", a.Index, len(f.positional))
		}
		return f.positional[a.Index], nil
	}
	if a.HasName {
		v, ok := f.named[a.Name]
		if !ok {
			return nil, fmt.Errorf("dispatch: no named argument %q", a.Name)
		}
		return v, nil
	}
	return nil, fmt.Errorf("dispatch: argument carries neither index nor name")
}

// CaseInfo is the Cases() introspection view of one registered method.
type CaseInfo struct {
	ID        int
	Signature string
	Qualifier Qualifier
}

// GFOption configures a GenericFunction at construction.
type GFOption func(*GenericFunction)

// WithGFLogger overrides the discard logger used for compile/dispatch
// diagnostics.
func WithGFLogger(l *logrus.Entry) GFOption {
	return func(g *GenericFunction) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithTracer attaches an opentracing.Tracer; Call and recompile each open a
// span when one is configured.
func WithTracer(t opentracing.Tracer) GFOption { return func(g *GenericFunction) { g.tracer = t } }

// WithNoApplicableDefault overrides the terminal behavior of the primary
// chain: instead of ErrNoApplicableMethods, fn is called.
func WithNoApplicableDefault(fn NextFunc) GFOption {
	return func(g *GenericFunction) { g.defaultFn = fn }
}

// WithCompilePool attaches a worker pool that best_split uses to score
// several candidate expressions concurrently while compiling a DAG node
// with many ready candidates — a generic function with a large, diverse
// rule set recompiles faster under concurrent load. Omit it (the default)
// to always compile single-threaded.
func WithCompilePool(p *pool.Pool) GFOption {
	return func(g *GenericFunction) { g.compilePool = p }
}

// GenericFunction is a predicate-dispatch generic function: a set of
// qualified methods, each guarded by a Signature, compiled into a decision
// DAG and combined at call time into the single applicable chain.
type GenericFunction struct {
	name string

	mu      sync.RWMutex
	methods map[int]Method
	nextID  int
	// dirty is set from markDirty, which a Protocol invokes as a
	// ChangeListener callback while holding its own lock (see
	// AddRule -> ProtocolCriterion.Subscribe in class.go). Keeping it
	// a lock-free atomic rather than a field under mu means that callback
	// never needs g.mu, so it can never invert against ensureCompiled
	// holding g.mu and calling into the protocol (e.g. via ProvidesType)
	// to evaluate a ProtocolCriterion during compilation.
	dirty   atomic.Bool
	root    *dagNode
	exprs   map[string]Expression
	unsubs  map[int][]func()

	logger      *logrus.Entry
	tracer      opentracing.Tracer
	defaultFn   NextFunc
	compilePool *pool.Pool
}

// NewGenericFunction builds an empty generic function named name (used only
// for diagnostics and error messages).
func NewGenericFunction(name string, opts ...GFOption) *GenericFunction {
	g := &GenericFunction{
		name:    name,
		methods: map[int]Method{},
		exprs:   map[string]Expression{},
		unsubs:  map[int][]func(){},
		logger:  discardLogger().WithField("generic_function", name),
	}
	g.dirty.Store(true)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// InternExpression canonicalizes e against previously interned expressions
// with the same String() form, so structurally identical expressions built
// independently by different call sites share one instance.
func (g *GenericFunction) InternExpression(e Expression) Expression {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := e.String()
	if existing, ok := g.exprs[key]; ok {
		return existing
	}
	g.exprs[key] = e
	return e
}

// AddRule registers a method under sig with the given qualifier, returning
// its case id (stable for the method's lifetime, usable with RemoveRule).
// The generic function is marked dirty; the DAG is rebuilt lazily on the
// next Call.
func (g *GenericFunction) AddRule(sig Signature, qualifier Qualifier, fn MethodFunc) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.methods[id] = Method{ID: id, Sig: sig, Qualifier: qualifier, Fn: fn}

	var unsubs []func()
	for _, t := range sig.Terms() {
		unsubs = append(unsubs, t.Criterion.Subscribe(g.markDirty))
	}
	g.unsubs[id] = unsubs
	g.dirty.Store(true)
	g.logger.WithFields(logrus.Fields{"case": id, "qualifier": qualifier.String(), "signature": sig.String()}).Debug("rule added")
	return id
}

// RemoveRule drops a previously registered method by id.
func (g *GenericFunction) RemoveRule(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.methods[id]; !ok {
		return
	}
	for _, u := range g.unsubs[id] {
		u()
	}
	delete(g.unsubs, id)
	delete(g.methods, id)
	g.dirty.Store(true)
}

// Clear removes every registered method and unsubscribes from every
// protocol change listener, returning the generic function to empty state.
func (g *GenericFunction) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, unsubs := range g.unsubs {
		for _, u := range unsubs {
			u()
		}
	}
	g.methods = map[int]Method{}
	g.unsubs = map[int][]func(){}
	g.exprs = map[string]Expression{}
	g.root = nil
	g.dirty.Store(true)
}

// Cases lists every registered method for introspection/debugging, ordered
// by id.
func (g *GenericFunction) Cases() []CaseInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]CaseInfo, 0, len(g.methods))
	for _, m := range g.methods {
		out = append(out, CaseInfo{ID: m.ID, Signature: m.Sig.String(), Qualifier: m.Qualifier})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// markDirty is invoked (from pkg/adapt's weak listener bus) whenever a
// ProtocolCriterion this generic function's rules depend on changes — e.g. a
// new adapter registered after Clear was never called — forcing a recompile
// on the next Call rather than a stale DAG silently missing the new case.
//
// It must never acquire g.mu. A Protocol invokes this while holding its own
// lock (Protocol.notifyLocked -> ChangeListener.Notify), and ensureCompiled
// acquires g.mu and then, while scoring ProtocolCriterion candidates, calls
// into the same protocol (ProvidesType) and so can be waiting on that
// protocol's lock. If markDirty also took g.mu, those two lock acquisitions
// would invert: one goroutine holding g.mu wanting the protocol's lock while
// another holds the protocol's lock wanting g.mu. The atomic flag lets this
// callback complete without ever wanting g.mu.
func (g *GenericFunction) markDirty() {
	g.dirty.Store(true)
}

func (g *GenericFunction) ensureCompiled() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.dirty.Load() && g.root != nil {
		return
	}
	// Cleared before reading g.methods, not after compiling: markDirty no
	// longer blocks on g.mu (see markDirty's doc comment), so a change can
	// arrive at any point during this compile. Clearing first means such a
	// change re-sets the flag and simply triggers another recompile on a
	// later Call, instead of being silently overwritten by an unconditional
	// clear at the end.
	g.dirty.Store(false)
	finish := startSpan(g.tracer, "dispatch.compile")
	defer finish()

	cases := make([]caseEntry, 0, len(g.methods))
	seen := map[string]bool{}
	var allExprs []Expression
	for id, m := range g.methods {
		cases = append(cases, caseEntry{id: id, sig: m.Sig})
		for _, t := range m.Sig.Terms() {
			key := t.Expr.String()
			if !seen[key] {
				seen[key] = true
				allExprs = append(allExprs, t.Expr)
			}
		}
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].id < cases[j].id })
	sort.Slice(allExprs, func(i, j int) bool { return allExprs[i].String() < allExprs[j].String() })

	cg := newConstraintGraph(allExprs, g.compilePool)
	g.root = compileNode(cases, allExprs, map[string]bool{}, cg)
	g.logger.WithField("cases", len(cases)).Debug("dag recompiled")
}

// Call dispatches on positional arguments, resolving ArgAt(i) expressions
// against args by index. Arguments built with ArgNamed require CallNamed.
func (g *GenericFunction) Call(args ...interface{}) (interface{}, error) {
	return g.call(callFrame{positional: args})
}

// CallNamed dispatches with both positional and named argument bindings.
func (g *GenericFunction) CallNamed(named map[string]interface{}, args ...interface{}) (interface{}, error) {
	return g.call(callFrame{positional: args, named: named})
}

func (g *GenericFunction) call(frame callFrame) (interface{}, error) {
	g.ensureCompiled()

	finish := startSpan(g.tracer, "dispatch.call")
	defer finish()

	g.mu.RLock()
	root := g.root
	methods := make(map[int]Method, len(g.methods))
	for id, m := range g.methods {
		methods[id] = m
	}
	g.mu.RUnlock()

	cache := map[string]interface{}{}
	ids, err := walk(root, frame, cache)
	if err != nil {
		return nil, err
	}

	applicable := verifyApplicable(methods, ids, frame, cache)

	var arounds, befores, primaries, afters []Method
	for _, m := range applicable {
		switch m.Qualifier {
		case Around:
			arounds = append(arounds, m)
		case Before:
			befores = append(befores, m)
		case After:
			afters = append(afters, m)
		default:
			primaries = append(primaries, m)
		}
	}

	arounds, err = orderBySpecificity(arounds)
	if err != nil {
		return nil, err
	}
	befores, err = orderBySpecificity(befores)
	if err != nil {
		return nil, err
	}
	primaries, err = orderBySpecificity(primaries)
	if err != nil {
		return nil, err
	}
	afters, err = orderBySpecificity(afters)
	if err != nil {
		return nil, err
	}

	noApplicable := func(args []interface{}) (interface{}, error) {
		if g.defaultFn != nil {
			return g.defaultFn(args)
		}
		return nil, ErrNoApplicableMethods.New(g.name, frame.positional)
	}

	return combine(arounds, befores, primaries, afters, frame.positional, noApplicable)
}

func walk(node *dagNode, frame callFrame, cache map[string]interface{}) ([]int, error) {
	for !node.leaf {
		v, err := evalExpr(frame, cache, node.expr)
		if err != nil {
			return nil, err
		}
		node = node.child(v)
	}
	return node.ids, nil
}

// verifyApplicable re-checks every candidate's full signature against the
// actual call, independent of which expressions the DAG happened to
// branch on along the way — the DAG prunes for speed, this is the
// correctness backstop.
func verifyApplicable(methods map[int]Method, ids []int, frame callFrame, cache map[string]interface{}) []Method {
	out := make([]Method, 0, len(ids))
	for _, id := range ids {
		m, ok := methods[id]
		if !ok {
			continue
		}
		if signatureHolds(m.Sig, frame, cache) {
			out = append(out, m)
		}
	}
	return out
}

func signatureHolds(sig Signature, frame callFrame, cache map[string]interface{}) bool {
	for _, t := range sig.Terms() {
		v, err := evalExpr(frame, cache, t.Expr)
		if err != nil {
			return false
		}
		seed := classifySeed(t.Criterion.Family(), v)
		if !t.Criterion.Contains(seed) {
			return false
		}
	}
	return true
}

// evalExpr evaluates expr against frame, memoizing by the expression's
// canonical string form so a value shared across several criteria (or
// reused inside And/Or) is computed once per call. And/Or evaluate their
// children lazily, left to right, short-circuiting as soon as the running
// result is decided — unlike every other kind, which computes eagerly from
// already-evaluated children.
func evalExpr(frame callFrame, cache map[string]interface{}, expr Expression) (interface{}, error) {
	key := expr.String()
	if v, ok := cache[key]; ok {
		return v, nil
	}
	switch e := expr.(type) {
	case argumentExpr:
		v, err := frame.resolve(e.arg)
		if err != nil {
			return nil, err
		}
		cache[key] = v
		return v, nil
	case constantExpr:
		v, _ := e.compute(nil)
		cache[key] = v
		return v, nil
	case attributeExpr:
		childVal, err := evalExpr(frame, cache, e.child)
		if err != nil {
			return nil, err
		}
		v, err := e.compute([]interface{}{childVal})
		if err != nil {
			return nil, err
		}
		cache[key] = v
		return v, nil
	case callExpr:
		children := make([]interface{}, len(e.args))
		for i, a := range e.args {
			v, err := evalExpr(frame, cache, a)
			if err != nil {
				return nil, err
			}
			children[i] = v
		}
		v, err := e.compute(children)
		if err != nil {
			return nil, err
		}
		cache[key] = v
		return v, nil
	case shortCircuitExpr:
		isAnd := e.kind == kindAnd
		var last interface{} = isAnd
		for _, ch := range e.children {
			v, err := evalExpr(frame, cache, ch)
			if err != nil {
				return nil, err
			}
			if truthy(v) != isAnd {
				cache[key] = v
				return v, nil
			}
			last = v
		}
		cache[key] = last
		return last, nil
	default:
		return nil, fmt.Errorf("dispatch: unknown expression kind %T", expr)
	}
}
