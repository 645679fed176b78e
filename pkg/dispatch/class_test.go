package dispatch

import (
	"reflect"
	"testing"

	"github.com/gitrdm/dispatchkit/pkg/adapt"
)

// animalI is the structural stand-in for a class hierarchy: any concrete
// type satisfying it is a "subclass" of Animal in Go's interface-based
// rendering of spec.md's class/subclass relation.
type animalI interface{ Sound() string }
type dogT struct{}

func (dogT) Sound() string { return "woof" }

func TestSubclassCriterionContainsUnseenConcreteType(t *testing.T) {
	animal := NewSubclass(reflect.TypeOf((*animalI)(nil)).Elem())

	// dogT was never itself registered as a seed anywhere; Contains must
	// still answer correctly from Go's own AssignableTo relation rather
	// than from a pre-registered seed bucket — the scenario node.go's
	// lazy, re-tested child partitioning exists to get right.
	if !animal.Contains(reflect.TypeOf(dogT{})) {
		t.Error("Subclass(Animal) must contain an unregistered concrete Dog type via AssignableTo")
	}
}

func TestClassCriterionExactMatchOnly(t *testing.T) {
	c := NewClass(reflect.TypeOf(0))
	if !c.Contains(reflect.TypeOf(0)) {
		t.Error("ClassCriterion must contain its own exact type")
	}
	if c.Contains(reflect.TypeOf(dogT{})) {
		t.Error("ClassCriterion (exact class) must not contain an unrelated type")
	}
}

func TestClassImpliesSubclass(t *testing.T) {
	cls := NewClass(reflect.TypeOf(0))
	sub := NewSubclass(reflect.TypeOf(0))
	if !cls.Implies(sub) {
		t.Error("Class(T) must imply Subclass(T)")
	}
}

func TestSubclassReflexive(t *testing.T) {
	sub := NewSubclass(reflect.TypeOf(0))
	if !sub.Implies(sub) {
		t.Error("Subclass(T) must imply itself")
	}
}

func TestProtocolCriterionTracksRegistration(t *testing.T) {
	p := adapt.NewProtocol("Testable")
	crit := NewProtocolCriterion(p)

	typ := reflect.TypeOf(dogT{})
	if crit.Contains(typ) {
		t.Error("ProtocolCriterion must not match before any adapter is registered")
	}

	changed := false
	unsub := crit.Subscribe(func() { changed = true })
	defer unsub()

	if err := p.RegisterType(typ, adapt.NoAdapterNeeded, 0); err != nil {
		t.Fatalf("RegisterType: %v", err)
	}

	if !changed {
		t.Error("Subscribe callback must fire when the protocol gains a registration")
	}
	if !crit.Contains(typ) {
		t.Error("ProtocolCriterion must match once the type is registered")
	}
}
