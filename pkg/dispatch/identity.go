package dispatch

import (
	"weak"
)

// IdentityHandle is the "Hashable-identity wrapper" external collaborators
// provide: a small, comparable value holding a weak reference to obj plus an
// id-equal comparison, so IdentityCriterion can key an index on object
// identity without pinning the object alive.
type IdentityHandle struct {
	ptr weak.Pointer[identityBox]
}

type identityBox struct{ value interface{} }

// NewIdentityHandle wraps obj behind a weak, identity-comparable handle.
// Comparing two handles with == reflects whether they were built from the
// same box, not whether the wrapped values are equal.
func NewIdentityHandle(obj interface{}) IdentityHandle {
	box := &identityBox{value: obj}
	return IdentityHandle{ptr: weak.Make(box)}
}

// Value returns the wrapped object, or (nil, false) if it has since been
// garbage collected.
func (h IdentityHandle) Value() (interface{}, bool) {
	box := h.ptr.Value()
	if box == nil {
		return nil, false
	}
	return box.value, true
}

// IdentityCriterion is true iff the argument's identity matches Handle.
// Lookup falls back to a None sentinel key when the argument carries no
// identity handle at all (e.g. it is nil).
type IdentityCriterion struct {
	Handle IdentityHandle
}

// NewIdentity builds an IdentityCriterion bound to obj's identity.
func NewIdentity(obj interface{}) IdentityCriterion {
	return IdentityCriterion{Handle: NewIdentityHandle(obj)}
}

// IdentityNone is the fallback seed used when a value carries no identity
// handle.
var IdentityNone Seed = struct{ name string }{"none"}

func (c IdentityCriterion) Family() DispatchFamily { return FamilyIdentity }
func (c IdentityCriterion) Contains(seed Seed) bool {
	h, ok := seed.(IdentityHandle)
	return ok && h.ptr == c.Handle.ptr
}
func (c IdentityCriterion) Seeds(IndexView) []Seed { return []Seed{c.Handle, IdentityNone} }
func (c IdentityCriterion) MatchingSeeds(all []Seed) []Seed {
	return defaultMatchingSeeds(c, all)
}
func (c IdentityCriterion) Implies(other Criterion) bool {
	if _, ok := other.(nullCriterion); ok {
		return true
	}
	o, ok := other.(IdentityCriterion)
	return ok && o.Handle.ptr == c.Handle.ptr
}
func (c IdentityCriterion) Invert() Criterion { return notCriterion{inner: c} }
func (c IdentityCriterion) Equal(other Criterion) bool {
	o, ok := other.(IdentityCriterion)
	return ok && o.Handle.ptr == c.Handle.ptr
}
func (c IdentityCriterion) Subscribe(func()) func() { return noopSubscribe(nil) }
func (c IdentityCriterion) String() string           { return "Identity(...)" }
