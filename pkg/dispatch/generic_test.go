package dispatch_test

import (
	"reflect"
	"testing"

	"github.com/gitrdm/dispatchkit/internal/pool"
	"github.com/gitrdm/dispatchkit/pkg/adapt"
	"github.com/gitrdm/dispatchkit/pkg/dispatch"
)

// animalI/dogT/catT model a class hierarchy the way Go actually expresses
// one: interface satisfaction, not struct embedding (which AssignableTo does
// not treat as a subtype relation). Subclass(animalI) is the "animal" case;
// Class(dogT) is the exact, more specific "dog" case.
type animalI interface{ Sound() string }
type dogT struct{}
type catT struct{}

func (dogT) Sound() string { return "woof" }
func (catT) Sound() string { return "meow" }

var animalIType = reflect.TypeOf((*animalI)(nil)).Elem()
var dogTType = reflect.TypeOf(dogT{})

func sig(t *testing.T, terms ...dispatch.SigTerm) dispatch.Signature {
	t.Helper()
	s, err := dispatch.NewSignature(terms...)
	if err != nil {
		t.Fatalf("NewSignature: %v", err)
	}
	return s
}

func TestClassDispatchPicksMostSpecificCase(t *testing.T) {
	gf := dispatch.NewGenericFunction("speak")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))

	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewSubclass(animalIType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "generic animal sound", nil })
	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewClass(dogTType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "woof", nil })

	got, err := gf.Call(dogT{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "woof" {
		t.Errorf("expected the Dog-specific case to win over the applicable-but-less-specific animal case, got %v", got)
	}

	got, err = gf.Call(catT{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "generic animal sound" {
		t.Errorf("expected the animal case to apply when no dog-specific case matches, got %v", got)
	}
}

func TestNoApplicableMethodRaisesNamedError(t *testing.T) {
	gf := dispatch.NewGenericFunction("onlyDogs")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))
	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewClass(dogTType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "woof", nil })

	_, err := gf.Call(catT{})
	if err == nil {
		t.Fatal("expected ErrNoApplicableMethods")
	}
	if !dispatch.ErrNoApplicableMethods.Is(err) {
		t.Errorf("expected ErrNoApplicableMethods, got %v", err)
	}
}

func TestWithNoApplicableDefault(t *testing.T) {
	gf := dispatch.NewGenericFunction("withDefault", dispatch.WithNoApplicableDefault(func(args []interface{}) (interface{}, error) {
		return "fallback", nil
	}))
	arg0 := dispatch.Arg(dispatch.ArgAt(0))
	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewClass(dogTType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "woof", nil })

	got, err := gf.Call(catT{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "fallback" {
		t.Errorf("expected the configured default, got %v", got)
	}
}

func TestInequalityPartitionDispatch(t *testing.T) {
	gf := dispatch.NewGenericFunction("bracket")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))
	age := dispatch.Call("age", func(c []interface{}) (interface{}, error) { return c[0], nil }, arg0)

	lt13, err := dispatch.NewInequality(dispatch.OpLT, 13)
	if err != nil {
		t.Fatalf("NewInequality: %v", err)
	}
	ge13, _ := dispatch.NewInequality(dispatch.OpGE, 13)
	lt20, err := dispatch.NewInequality(dispatch.OpLT, 20)
	if err != nil {
		t.Fatalf("NewInequality: %v", err)
	}
	ge20, _ := dispatch.NewInequality(dispatch.OpGE, 20)

	teen, err := dispatch.And(ge13, lt20)
	if err != nil {
		t.Fatalf("And: %v", err)
	}

	gf.AddRule(sig(t, dispatch.Term(age, lt13)), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "child", nil })
	gf.AddRule(sig(t, dispatch.Term(age, teen)), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "teen", nil })
	gf.AddRule(sig(t, dispatch.Term(age, ge20)), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "adult", nil })

	for _, c := range []struct {
		age  int
		want string
	}{{5, "child"}, {13, "teen"}, {19, "teen"}, {20, "adult"}, {40, "adult"}} {
		got, err := gf.Call(c.age)
		if err != nil {
			t.Fatalf("Call(%d): %v", c.age, err)
		}
		if got != c.want {
			t.Errorf("Call(%d) = %v, want %v", c.age, got, c.want)
		}
	}
}

func TestAmbiguousMethodDetected(t *testing.T) {
	gf := dispatch.NewGenericFunction("ambiguous")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))
	arg1 := dispatch.Arg(dispatch.ArgAt(1))

	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewClass(dogTType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "by-first", nil })
	gf.AddRule(sig(t, dispatch.Term(arg1, dispatch.NewClass(dogTType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "by-second", nil })

	_, err := gf.Call(dogT{}, dogT{})
	if err == nil {
		t.Fatal("expected ErrAmbiguousMethod: neither rule's signature implies the other")
	}
	if !dispatch.ErrAmbiguousMethod.Is(err) {
		t.Errorf("expected ErrAmbiguousMethod, got %v", err)
	}
}

func TestMethodCombinationOrdering(t *testing.T) {
	gf := dispatch.NewGenericFunction("describe")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))
	animalSig := sig(t, dispatch.Term(arg0, dispatch.NewSubclass(animalIType)))
	dogSig := sig(t, dispatch.Term(arg0, dispatch.NewClass(dogTType)))

	var trace []string

	gf.AddRule(animalSig, dispatch.Primary, func(next dispatch.NextFunc, args []interface{}) (interface{}, error) {
		trace = append(trace, "primary:animal")
		return "animal", nil
	})
	gf.AddRule(dogSig, dispatch.Primary, func(next dispatch.NextFunc, args []interface{}) (interface{}, error) {
		trace = append(trace, "primary:dog")
		base, err := next(args)
		if err != nil {
			return nil, err
		}
		return "dog+" + base.(string), nil
	})
	gf.AddRule(dogSig, dispatch.Before, func(next dispatch.NextFunc, args []interface{}) (interface{}, error) {
		trace = append(trace, "before:dog")
		return nil, nil
	})
	gf.AddRule(dogSig, dispatch.After, func(next dispatch.NextFunc, args []interface{}) (interface{}, error) {
		trace = append(trace, "after:dog")
		return nil, nil
	})
	gf.AddRule(dogSig, dispatch.Around, func(next dispatch.NextFunc, args []interface{}) (interface{}, error) {
		trace = append(trace, "around:dog:enter")
		result, err := next(args)
		trace = append(trace, "around:dog:exit")
		return result, err
	})

	got, err := gf.Call(dogT{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "dog+animal" {
		t.Errorf("expected next_method chaining to compose dog+animal, got %v", got)
	}

	want := []string{
		"around:dog:enter",
		"before:dog",
		"primary:dog",
		"primary:animal",
		"after:dog",
		"around:dog:exit",
	}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q (full trace %v)", i, trace[i], want[i], trace)
		}
	}
}

func TestCasesIntrospection(t *testing.T) {
	gf := dispatch.NewGenericFunction("introspect")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))
	id := gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewClass(dogTType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "woof", nil })

	cases := gf.Cases()
	if len(cases) != 1 || cases[0].ID != id {
		t.Fatalf("expected exactly the registered case, got %v", cases)
	}
	if cases[0].Qualifier != dispatch.Primary {
		t.Errorf("expected Primary qualifier, got %v", cases[0].Qualifier)
	}

	gf.RemoveRule(id)
	if len(gf.Cases()) != 0 {
		t.Error("RemoveRule should drop the case from Cases()")
	}
}

func TestDynamicDispatchViaLateProtocolRegistration(t *testing.T) {
	protocol := adapt.NewProtocol("CanFetch")
	gf := dispatch.NewGenericFunction("fetch")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))

	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewProtocolCriterion(protocol))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "fetched", nil })

	_, err := gf.Call(dogT{})
	if err == nil || !dispatch.ErrNoApplicableMethods.Is(err) {
		t.Fatalf("expected no applicable method before registration, got %v", err)
	}

	// No Clear() call: the weak change-listener bus must mark gf dirty on
	// its own once the protocol gains an adapter for dogT.
	if err := protocol.RegisterType(dogTType, adapt.NoAdapterNeeded, 0); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	got, err := gf.Call(dogT{})
	if err != nil {
		t.Fatalf("Call after registration: %v", err)
	}
	if got != "fetched" {
		t.Errorf("expected the now-applicable rule to fire, got %v", got)
	}
}

func TestShortCircuitAndIsLazy(t *testing.T) {
	gf := dispatch.NewGenericFunction("lazyAnd")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))

	evaluated := false
	alwaysFalse := dispatch.Call("alwaysFalse", func(c []interface{}) (interface{}, error) { return false, nil }, arg0)
	sideEffecting := dispatch.Call("sideEffecting", func(c []interface{}) (interface{}, error) {
		evaluated = true
		return true, nil
	}, arg0)
	and := dispatch.AndExpr(alwaysFalse, sideEffecting)

	gf.AddRule(sig(t, dispatch.Term(and, dispatch.NewTruth(true))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "matched", nil },
	)
	gf.AddRule(sig(t, dispatch.Term(dispatch.Arg(dispatch.ArgAt(0)), dispatch.Null)), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "fallthrough", nil },
	)

	got, err := gf.Call(1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "fallthrough" {
		t.Errorf("expected the fallthrough rule, got %v", got)
	}
	if evaluated {
		t.Error("the second operand of a false-short-circuited And must never be evaluated")
	}
}

func TestCompilationWithWorkerPool(t *testing.T) {
	p := pool.New(4, 1, pool.Config{})
	defer p.Shutdown()

	gf := dispatch.NewGenericFunction("parallelSplit", dispatch.WithCompilePool(p))

	// Eight rules, each keyed on a distinct positional argument, give the
	// root DAG node eight independent ready candidates — enough to cross
	// best_split's parallel-scoring threshold and actually exercise the
	// pool rather than just configuring one.
	const arity = 8
	for i := 0; i < arity; i++ {
		i := i
		arg := dispatch.Arg(dispatch.ArgAt(i))
		eq, err := dispatch.NewInequality(dispatch.OpEQ, float64(i))
		if err != nil {
			t.Fatalf("NewInequality: %v", err)
		}
		label := i
		gf.AddRule(sig(t, dispatch.Term(arg, eq)), dispatch.Primary,
			func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return label, nil })
	}

	args := make([]interface{}, arity)
	for i := range args {
		args[i] = 100
	}
	args[3] = 3

	got, err := gf.Call(args...)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 3 {
		t.Errorf("expected only the rule bound to the matching argument to apply, got %v", got)
	}
}

func TestRuleAdditionInvalidatesCompiledDAG(t *testing.T) {
	gf := dispatch.NewGenericFunction("incremental")
	arg0 := dispatch.Arg(dispatch.ArgAt(0))

	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewSubclass(animalIType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "generic", nil })

	got, err := gf.Call(dogT{})
	if err != nil || got != "generic" {
		t.Fatalf("Call before refinement: got=%v err=%v", got, err)
	}

	gf.AddRule(sig(t, dispatch.Term(arg0, dispatch.NewClass(dogTType))), dispatch.Primary,
		func(next dispatch.NextFunc, args []interface{}) (interface{}, error) { return "specific", nil })

	got, err = gf.Call(dogT{})
	if err != nil {
		t.Fatalf("Call after refinement: %v", err)
	}
	if got != "specific" {
		t.Errorf("a rule added after the DAG already compiled once must still be dispatched to, got %v", got)
	}
}
