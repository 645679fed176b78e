package dispatch

import (
	"fmt"
	"reflect"
	"strings"
)

// exprKind tags the variant of an Expression, mirroring spec.md §3's sum
// type: Argument, Constant, Attribute-lookup, Function-call, Tuple-build,
// Short-circuit-and, Short-circuit-or.
type exprKind int

const (
	kindArgument exprKind = iota
	kindConstant
	kindAttribute
	kindCall
	kindTuple
	kindAnd
	kindOr
)

func (k exprKind) String() string {
	switch k {
	case kindArgument:
		return "argument"
	case kindConstant:
		return "constant"
	case kindAttribute:
		return "attribute"
	case kindCall:
		return "call"
	case kindTuple:
		return "tuple"
	case kindAnd:
		return "and"
	case kindOr:
		return "or"
	default:
		return "unknown"
	}
}

// CallFunc computes a Call or Tuple-build expression's value from its
// already-evaluated children.
type CallFunc func(children []interface{}) (interface{}, error)

// AttrGetter lets a value answer Attribute-lookup expressions itself,
// bypassing reflection.
type AttrGetter interface {
	GetAttr(name string) (interface{}, error)
}

// Expression is one interned node of the per-generic-function expression
// graph: Argument, Constant, Attribute-lookup, Function-call, Tuple-build,
// or a short-circuit And/Or over ordered children. Expressions are
// structurally value-equal and carry their own (compute, children)
// representation.
type Expression interface {
	Kind() exprKind
	Children() []Expression
	// Equal reports structural (source-level) equality.
	Equal(other Expression) bool
	// shapeLabel distinguishes the compute identity of non-structural
	// fields (a constant's value, an attribute's name, a call's
	// registered id). No lookup in this package consults it;
	// InternExpression keys on String().
	shapeLabel() string
	// compute evaluates a non-argument, non-short-circuit expression from
	// its children's already-computed values. Argument/And/Or expressions
	// are evaluated specially by the expression cache and never call this.
	compute(children []interface{}) (interface{}, error)
	// String renders a canonical textual form, used as the map key for
	// per-expression indexes and signature terms.
	String() string
}

// --- Argument ---------------------------------------------------------

type argumentExpr struct{ arg Argument }

// Arg lifts an Argument into the expression graph.
func Arg(a Argument) Expression { return argumentExpr{arg: a} }

func (e argumentExpr) Kind() exprKind             { return kindArgument }
func (e argumentExpr) Children() []Expression     { return nil }
func (e argumentExpr) shapeLabel() string         { return "arg:" + e.arg.String() }
func (e argumentExpr) compute([]interface{}) (interface{}, error) {
	return nil, errInvariant.New("argument expressions are resolved from the call tuple, not compute()")
}
func (e argumentExpr) Equal(other Expression) bool {
	o, ok := other.(argumentExpr)
	return ok && e.arg.Equal(o.arg)
}
func (e argumentExpr) String() string { return e.arg.String() }

// --- Constant -----------------------------------------------------------

type constantExpr struct{ value interface{} }

// Const lifts an arbitrary, hashable Go value into the expression graph.
func Const(value interface{}) Expression { return constantExpr{value: value} }

func (e constantExpr) Kind() exprKind         { return kindConstant }
func (e constantExpr) Children() []Expression { return nil }
func (e constantExpr) shapeLabel() string     { return fmt.Sprintf("const:%T:%v", e.value, e.value) }
func (e constantExpr) compute([]interface{}) (interface{}, error) {
	return e.value, nil
}
func (e constantExpr) Equal(other Expression) bool {
	o, ok := other.(constantExpr)
	if !ok {
		return false
	}
	return safeEqual(e.value, o.value)
}
func (e constantExpr) String() string { return fmt.Sprintf("Const(%v)", e.value) }

func safeEqual(a, b interface{}) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// --- Attribute-lookup -----------------------------------------------------

type attributeExpr struct {
	child Expression
	name  string
}

// Attr builds an attribute-lookup expression: child.name, resolved at
// evaluation time via AttrGetter, struct field, or map key.
func Attr(child Expression, name string) Expression {
	return attributeExpr{child: child, name: name}
}

func (e attributeExpr) Kind() exprKind             { return kindAttribute }
func (e attributeExpr) Children() []Expression     { return []Expression{e.child} }
func (e attributeExpr) shapeLabel() string         { return "attr:" + e.name }
func (e attributeExpr) compute(children []interface{}) (interface{}, error) {
	return getAttr(children[0], e.name)
}
func (e attributeExpr) Equal(other Expression) bool {
	o, ok := other.(attributeExpr)
	return ok && e.name == o.name && e.child.Equal(o.child)
}
func (e attributeExpr) String() string { return fmt.Sprintf("%v.%s", e.child, e.name) }

func getAttr(obj interface{}, name string) (interface{}, error) {
	if g, ok := obj.(AttrGetter); ok {
		return g.GetAttr(name)
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("dispatch: attribute %q on nil pointer", name)
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Map:
		mv := v.MapIndex(reflect.ValueOf(name))
		if !mv.IsValid() {
			return nil, fmt.Errorf("dispatch: no key %q in %T", name, obj)
		}
		return mv.Interface(), nil
	case reflect.Struct:
		fv := v.FieldByName(name)
		if !fv.IsValid() {
			return nil, fmt.Errorf("dispatch: no field %q in %T", name, obj)
		}
		return fv.Interface(), nil
	default:
		return nil, fmt.Errorf("dispatch: cannot resolve attribute %q on %T", name, obj)
	}
}

// --- Function-call / Tuple-build -----------------------------------------

type callExpr struct {
	id   string
	fn   CallFunc
	args []Expression
	kind exprKind
}

// Call builds a function-call expression: id is a stable label identifying
// fn for structural equality (Go funcs are not themselves comparable).
func Call(id string, fn CallFunc, args ...Expression) Expression {
	e := callExpr{id: id, fn: fn, args: args, kind: kindCall}
	if folded, ok := tryFold(e); ok {
		return folded
	}
	return e
}

// TupleBuild builds a tuple-constructor expression: id is a stable label
// identifying ctor for structural equality.
func TupleBuild(id string, ctor CallFunc, args ...Expression) Expression {
	e := callExpr{id: id, fn: ctor, args: args, kind: kindTuple}
	if folded, ok := tryFold(e); ok {
		return folded
	}
	return e
}

func (e callExpr) Kind() exprKind         { return e.kind }
func (e callExpr) Children() []Expression { return e.args }
func (e callExpr) shapeLabel() string     { return string(e.kind.String()[0]) + ":" + e.id }
func (e callExpr) compute(children []interface{}) (interface{}, error) {
	return e.fn(children)
}
func (e callExpr) Equal(other Expression) bool {
	o, ok := other.(callExpr)
	if !ok || e.kind != o.kind || e.id != o.id || len(e.args) != len(o.args) {
		return false
	}
	for i := range e.args {
		if !e.args[i].Equal(o.args[i]) {
			return false
		}
	}
	return true
}
func (e callExpr) String() string {
	parts := make([]string, len(e.args))
	for i, a := range e.args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf("%s(%s)", e.id, strings.Join(parts, ", "))
}

// --- Short-circuit And / Or ----------------------------------------------

type shortCircuitExpr struct {
	kind     exprKind
	children []Expression
}

// AndExpr builds a short-circuit-and expression over its children. Named
// distinctly from criterion.go's And (criterion algebra) and Signature.And
// (term merging) since Go doesn't allow overloading by return type.
func AndExpr(children ...Expression) Expression {
	e := shortCircuitExpr{kind: kindAnd, children: children}
	if folded, ok := tryFold(e); ok {
		return folded
	}
	return e
}

// OrExpr builds a short-circuit-or expression over its children.
func OrExpr(children ...Expression) Expression {
	e := shortCircuitExpr{kind: kindOr, children: children}
	if folded, ok := tryFold(e); ok {
		return folded
	}
	return e
}

func (e shortCircuitExpr) Kind() exprKind         { return e.kind }
func (e shortCircuitExpr) Children() []Expression { return e.children }
func (e shortCircuitExpr) shapeLabel() string     { return e.kind.String() }
func (e shortCircuitExpr) compute(children []interface{}) (interface{}, error) {
	// Only reached via constant folding (all children already constants);
	// the expression cache evaluates non-constant And/Or lazily instead.
	result := e.kind == kindAnd
	for _, c := range children {
		if truthy(c) != (e.kind == kindAnd) {
			return truthy(c), nil
		}
	}
	return result, nil
}
func (e shortCircuitExpr) Equal(other Expression) bool {
	o, ok := other.(shortCircuitExpr)
	if !ok || e.kind != o.kind || len(e.children) != len(o.children) {
		return false
	}
	for i := range e.children {
		if !e.children[i].Equal(o.children[i]) {
			return false
		}
	}
	return true
}
func (e shortCircuitExpr) String() string {
	parts := make([]string, len(e.children))
	for i, c := range e.children {
		parts[i] = fmt.Sprintf("%v", c)
	}
	sep := " && "
	if e.kind == kindOr {
		sep = " || "
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return rv.Len() != 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	default:
		return true
	}
}

// tryFold performs eager constant folding when every child of a Call,
// Tuple-build or short-circuit expression is itself a Constant, per §4.4.
// Any panic or error from the underlying function aborts folding — the
// unfolded node is kept and the error surfaces at ordinary evaluation time.
func tryFold(e Expression) (folded Expression, ok bool) {
	children := e.Children()
	if len(children) == 0 {
		return nil, false
	}
	values := make([]interface{}, len(children))
	for i, c := range children {
		cc, isConst := c.(constantExpr)
		if !isConst {
			return nil, false
		}
		values[i] = cc.value
	}
	defer func() {
		if recover() != nil {
			folded, ok = nil, false
		}
	}()
	v, err := e.compute(values)
	if err != nil {
		return nil, false
	}
	return constantExpr{value: v}, true
}
