package adapt_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/dispatchkit/pkg/adapt"
)

type implType struct{ n int }

// TestAdapterComposition_Scenario6 follows spec.md §8 scenario 6: given
// RegisterImplied(IA->IC, f1) and RegisterType(Impl->IA, f2), adapting an
// Impl instance to IC returns f1(f2(instance)) with depth 2 and hops 2.
func TestAdapterComposition_Scenario6(t *testing.T) {
	ia := adapt.NewProtocol("IA")
	ic := adapt.NewProtocol("IC")

	rt := reflect.TypeOf(implType{})

	f2 := adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return fmt.Sprintf("ia(impl#%d)", obj.(implType).n), nil
	})
	require.NoError(t, ia.RegisterType(rt, f2, 1))

	f1 := adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "ic(" + obj.(string) + ")", nil
	})
	require.NoError(t, ia.RegisterImplied(ic, f1, 1))

	got, err := adapt.Adapt(implType{n: 7}, ic)
	require.NoError(t, err)
	require.Equal(t, "ic(ia(impl#7))", got)
}

func TestComposeAssociativity(t *testing.T) {
	// Three chained RegisterImplied hops compose c, then b, then a onto the
	// base adapter; only the composed output is checked here, and only the
	// grouping that propagation through the public API produces.
	p1 := adapt.NewProtocol("P1")
	p2 := adapt.NewProtocol("P2")
	p3 := adapt.NewProtocol("P3")
	p4 := adapt.NewProtocol("P4")

	type base struct{}
	baseType := reflect.TypeOf(base{})

	a := adapt.AdapterFunc(func(obj interface{}) (interface{}, error) { return obj.(string) + "-a", nil })
	b := adapt.AdapterFunc(func(obj interface{}) (interface{}, error) { return obj.(string) + "-b", nil })
	c := adapt.AdapterFunc(func(obj interface{}) (interface{}, error) { return obj.(string) + "-c", nil })

	require.NoError(t, p1.RegisterType(baseType, adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "base", nil
	}), 1))
	require.NoError(t, p1.RegisterImplied(p2, c, 1))
	require.NoError(t, p2.RegisterImplied(p3, b, 1))
	require.NoError(t, p3.RegisterImplied(p4, a, 1))

	got, err := adapt.Adapt(base{}, p4)
	require.NoError(t, err)
	require.Equal(t, "base-c-b-a", got)
}
