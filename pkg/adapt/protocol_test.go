package adapt_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/dispatchkit/pkg/adapt"
)

type iaImpl struct{ n int }

func TestRegisterType_DominanceAndAmbiguity(t *testing.T) {
	p := adapt.NewProtocol("IA")
	typ := reflect.TypeOf(iaImpl{})

	err := p.RegisterType(typ, adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "shallow", nil
	}), 2)
	require.NoError(t, err)

	// A shallower adapter for the same type dominates and replaces it.
	err = p.RegisterType(typ, adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "shallow-wins", nil
	}), 1)
	require.NoError(t, err)

	got, err := adapt.Adapt(iaImpl{n: 1}, p)
	require.NoError(t, err)
	require.Equal(t, "shallow-wins", got)

	// A second adapter at the same depth and hop count is ambiguous.
	err = p.RegisterType(typ, adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "other", nil
	}), 1)
	require.Error(t, err)
	require.True(t, adapt.ErrAmbiguousAdapter.Is(err))
}

func TestRegisterType_DeeperAdapterIsIgnored(t *testing.T) {
	p := adapt.NewProtocol("IA")
	typ := reflect.TypeOf(iaImpl{})

	require.NoError(t, p.RegisterType(typ, adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "winner", nil
	}), 1))

	// Deeper adapter loses silently; no error, no replacement.
	require.NoError(t, p.RegisterType(typ, adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "loser", nil
	}), 5))

	got, err := adapt.Adapt(iaImpl{}, p)
	require.NoError(t, err)
	require.Equal(t, "winner", got)
}

func TestAdapt_InterfaceTypeShortCircuit(t *testing.T) {
	type greeter interface{ Greet() string }
	p := adapt.NewProtocol("Greeter")
	p.InterfaceType = reflect.TypeOf((*greeter)(nil)).Elem()

	got, err := adapt.Adapt(concreteGreeter{}, p)
	require.NoError(t, err)
	require.Equal(t, concreteGreeter{}, got)
}

type concreteGreeter struct{}

func (concreteGreeter) Greet() string { return "hi" }

func TestAdapt_Conform(t *testing.T) {
	p := adapt.NewProtocol("IA")
	got, err := adapt.Adapt(conformingObj{}, p)
	require.NoError(t, err)
	require.Equal(t, "conformed", got)
}

type conformingObj struct{}

func (conformingObj) Conform(protocol *adapt.Protocol) (interface{}, error) {
	return "conformed", nil
}

func TestAdapt_NoAdapterReturnsDefaultOrFactoryOrRaises(t *testing.T) {
	p := adapt.NewProtocol("IA")

	_, err := adapt.Adapt(42, p)
	require.Error(t, err)

	got, err := adapt.Adapt(42, p, adapt.WithDefault("fallback"))
	require.NoError(t, err)
	require.Equal(t, "fallback", got)

	got, err = adapt.Adapt(42, p, adapt.WithFactory(func(obj interface{}, protocol *adapt.Protocol) (interface{}, error) {
		return "factory-made", nil
	}))
	require.NoError(t, err)
	require.Equal(t, "factory-made", got)
}

func TestRegisterObject_OverridesTypeButNotClassProvides(t *testing.T) {
	p := adapt.NewProtocol("IA")
	one := &iaImpl{n: 1}
	two := &iaImpl{n: 2}

	require.NoError(t, p.RegisterObject(one, adapt.AdapterFunc(func(obj interface{}) (interface{}, error) {
		return "one-specific", nil
	}), 0))

	got, err := adapt.Adapt(one, p)
	require.NoError(t, err)
	require.Equal(t, "one-specific", got)

	_, err = adapt.Adapt(two, p)
	require.Error(t, err)

	require.False(t, p.ClassProvides(reflect.TypeOf(iaImpl{})))
	p.DeclareProvides(reflect.TypeOf(iaImpl{}))
	require.True(t, p.ClassProvides(reflect.TypeOf(iaImpl{})))
}
