package dispatch

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/gitrdm/dispatchkit/pkg/adapt"
)

// universalRoot is the classic-instance / object root every MRO chain ends
// at — the same sentinel pkg/adapt uses, so ClassCriterion and
// ProtocolCriterion agree on where a walk bottoms out.
var universalRoot = reflect.TypeOf((*any)(nil)).Elem()

// TypeSystem is the "type system bridge" external collaborators provide: a
// function from a type to its ordered, MRO-like supertype chain, ending at
// a universal root. The default walks Go's structural identity, since Go
// has no class hierarchy to walk.
type TypeSystem interface {
	MRO(t reflect.Type) []reflect.Type
}

type structuralTypeSystem struct{}

func (structuralTypeSystem) MRO(t reflect.Type) []reflect.Type {
	if t == nil {
		return []reflect.Type{universalRoot}
	}
	return []reflect.Type{t, universalRoot}
}

// DefaultTypeSystem is the TypeSystem NewClass and NewSubclass attach, and
// the one a ClassCriterion built without a type system reports from MRO.
var DefaultTypeSystem TypeSystem = structuralTypeSystem{}

// ClassCriterion is true for values whose dynamic type is exactly Type.
// Contains compares the seed type with Type directly; it does not walk the
// type system's MRO chain. Its seeds are Type and the universal root.
type ClassCriterion struct {
	Type  reflect.Type
	types TypeSystem
}

// NewClass builds a ClassCriterion over t using the default type system.
func NewClass(t reflect.Type) ClassCriterion {
	return ClassCriterion{Type: t, types: DefaultTypeSystem}
}

// NewClassWithTypeSystem builds a ClassCriterion carrying an explicit MRO
// provider. The provider is reachable through MRO only; Contains, Implies
// and dispatch still match the exact type.
func NewClassWithTypeSystem(t reflect.Type, ts TypeSystem) ClassCriterion {
	return ClassCriterion{Type: t, types: ts}
}

func (c ClassCriterion) resolver() TypeSystem {
	if c.types != nil {
		return c.types
	}
	return DefaultTypeSystem
}

func (c ClassCriterion) Family() DispatchFamily { return FamilyClass }
func (c ClassCriterion) Contains(seed Seed) bool {
	t, ok := seed.(reflect.Type)
	return ok && t == c.Type
}
func (c ClassCriterion) Seeds(IndexView) []Seed { return []Seed{c.Type, universalRoot} }
func (c ClassCriterion) MatchingSeeds(all []Seed) []Seed {
	return defaultMatchingSeeds(c, all)
}
func (c ClassCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	switch o := other.(type) {
	case ClassCriterion:
		return o.Type == c.Type
	case SubclassCriterion:
		return c.Type == o.Type || c.Type.AssignableTo(o.Type)
	default:
		return false
	}
}
func (c ClassCriterion) Invert() Criterion { return notCriterion{inner: c} }
func (c ClassCriterion) Equal(other Criterion) bool {
	o, ok := other.(ClassCriterion)
	return ok && o.Type == c.Type
}
func (c ClassCriterion) Subscribe(func()) func() { return noopSubscribe(nil) }
func (c ClassCriterion) String() string          { return fmt.Sprintf("Class(%s)", c.Type) }

// MRO exposes the supertype chain the criterion's type system reports for t.
// Nothing in the compiled DAG or in Contains calls it.
func (c ClassCriterion) MRO(t reflect.Type) []reflect.Type { return c.resolver().MRO(t) }

// SubclassCriterion is true for Type and any type assignable to it (Go's
// structural analogue of "C and its subclasses"), used to dispatch on
// class/type-valued arguments themselves rather than instances.
type SubclassCriterion struct {
	Type  reflect.Type
	types TypeSystem
}

// NewSubclass builds a SubclassCriterion over t.
func NewSubclass(t reflect.Type) SubclassCriterion {
	return SubclassCriterion{Type: t, types: DefaultTypeSystem}
}

func (c SubclassCriterion) Family() DispatchFamily { return FamilyClass }
func (c SubclassCriterion) Contains(seed Seed) bool {
	t, ok := seed.(reflect.Type)
	if !ok {
		return false
	}
	return t == c.Type || (c.Type != nil && t.AssignableTo(c.Type))
}
func (c SubclassCriterion) Seeds(IndexView) []Seed { return []Seed{c.Type, universalRoot} }
func (c SubclassCriterion) MatchingSeeds(all []Seed) []Seed {
	return defaultMatchingSeeds(c, all)
}
func (c SubclassCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	o, ok := other.(SubclassCriterion)
	return ok && (c.Type == o.Type || c.Type.AssignableTo(o.Type))
}
func (c SubclassCriterion) Invert() Criterion { return notCriterion{inner: c} }
func (c SubclassCriterion) Equal(other Criterion) bool {
	o, ok := other.(SubclassCriterion)
	return ok && o.Type == c.Type
}
func (c SubclassCriterion) Subscribe(func()) func() { return noopSubscribe(nil) }
func (c SubclassCriterion) String() string          { return fmt.Sprintf("Subclass(%s)", c.Type) }

// ProtocolCriterion is true when the object's class (or the class-graph
// reachable via registered adapters) provides protocol P. It subscribes to
// the protocol's weak change bus, so registering a new adapter later can
// invalidate generic functions that dispatched on this criterion without a
// full Clear.
type ProtocolCriterion struct {
	Protocol *adapt.Protocol
}

// NewProtocolCriterion builds a ProtocolCriterion over p.
func NewProtocolCriterion(p *adapt.Protocol) ProtocolCriterion {
	return ProtocolCriterion{Protocol: p}
}

func (c ProtocolCriterion) Family() DispatchFamily { return FamilyClass }
func (c ProtocolCriterion) Contains(seed Seed) bool {
	t, ok := seed.(reflect.Type)
	return ok && c.Protocol.ProvidesType(t)
}
func (c ProtocolCriterion) Seeds(IndexView) []Seed { return []Seed{universalRoot} }
func (c ProtocolCriterion) MatchingSeeds(all []Seed) []Seed {
	return defaultMatchingSeeds(c, all)
}
func (c ProtocolCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	o, ok := other.(ProtocolCriterion)
	return ok && o.Protocol == c.Protocol
}
func (c ProtocolCriterion) Invert() Criterion { return notCriterion{inner: c} }
func (c ProtocolCriterion) Equal(other Criterion) bool {
	o, ok := other.(ProtocolCriterion)
	return ok && o.Protocol == c.Protocol
}

// Subscribe registers onChange with the underlying protocol's weak listener
// set. The protocol holds the listener only weakly; the returned unsubscribe
// func holds it strongly, so the subscription lasts while that func is
// reachable. Calling it removes the listener; dropping it lets the listener
// be collected.
func (c ProtocolCriterion) Subscribe(onChange func()) func() {
	l := adapt.NewChangeListener(func(adapt.AdapterChange) { onChange() })
	token := c.Protocol.AddListener(l)
	return func() {
		c.Protocol.RemoveListener(token)
		runtime.KeepAlive(l)
	}
}
func (c ProtocolCriterion) String() string { return fmt.Sprintf("Protocol(%s)", c.Protocol.Name()) }

// notCriterion is the fallback Invert() target for criteria whose negation
// cannot be expressed more directly within the same family (everything but
// TruthCriterion, And/Or and Null/Never, which invert themselves/each
// other). It shares its inner criterion's family.
type notCriterion struct{ inner Criterion }

func (c notCriterion) Family() DispatchFamily { return c.inner.Family() }
func (c notCriterion) Contains(seed Seed) bool { return !c.inner.Contains(seed) }
func (c notCriterion) Seeds(view IndexView) []Seed { return c.inner.Seeds(view) }
func (c notCriterion) MatchingSeeds(all []Seed) []Seed {
	return defaultMatchingSeeds(c, all)
}
func (c notCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	if o, ok := other.(notCriterion); ok {
		return o.inner.Implies(c.inner)
	}
	return false
}
func (c notCriterion) Invert() Criterion { return c.inner }
func (c notCriterion) Equal(other Criterion) bool {
	o, ok := other.(notCriterion)
	return ok && o.inner.Equal(c.inner)
}
func (c notCriterion) Subscribe(onChange func()) func() { return c.inner.Subscribe(onChange) }
func (c notCriterion) String() string                   { return fmt.Sprintf("Not(%v)", c.inner) }
