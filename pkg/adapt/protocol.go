// Package adapt implements an extensible, open adaptation registry: given an
// object and a protocol (an abstract capability advertised independently of
// the object's nominal type), produce a value satisfying that protocol, or
// report that none exists.
//
// A Protocol owns three registries — per-type adapters, implied-protocol
// adapters, and per-object overrides — plus a weakly-held set of listeners
// notified whenever a registration changes the protocol's resolution. The
// package never keeps a registered listener alive on its own: Protocol holds
// only a weak.Pointer to each one, so a *ChangeListener (such as the one
// dispatch.ProtocolCriterion.Subscribe creates) can be garbage collected once
// nothing else references it.
package adapt

import (
	"fmt"
	"reflect"
	"sync"
	"weak"

	"github.com/sirupsen/logrus"
)

// Sentinel is an opaque adapter-slot value compared only by identity. The two
// package-level instances, NoAdapterNeeded and DoesNotSupport, are the only
// ones that exist.
type Sentinel struct{ name string }

func (s *Sentinel) String() string { return s.name }

var (
	// NoAdapterNeeded marks a slot where the object already satisfies the
	// protocol without conversion: composing it with anything yields the
	// other side unchanged.
	NoAdapterNeeded = &Sentinel{name: "NoAdapterNeeded"}
	// DoesNotSupport marks a slot that is known, definitively, to never
	// satisfy the protocol. Composing it with anything yields itself.
	DoesNotSupport = &Sentinel{name: "DoesNotSupport"}
)

// AdapterFunc converts obj into a value satisfying the owning protocol.
type AdapterFunc func(obj interface{}) (interface{}, error)

// Adapter is either an AdapterFunc or one of the two Sentinel values.
type Adapter interface{}

type adapterKind int

const (
	kindCallable adapterKind = iota
	kindNoAdapterNeeded
	kindDoesNotSupport
)

// rank orders kinds for adapter arithmetic at equal (depth, hops):
// NO_ADAPTER_NEEDED beats any callable beats DOES_NOT_SUPPORT.
func (k adapterKind) rank() int {
	switch k {
	case kindNoAdapterNeeded:
		return 0
	case kindCallable:
		return 1
	default:
		return 2
	}
}

type entry struct {
	kind  adapterKind
	fn    AdapterFunc
	depth int
	hops  int
}

func toEntry(a Adapter, depth int) entry {
	switch v := a.(type) {
	case *Sentinel:
		if v == NoAdapterNeeded {
			return entry{kind: kindNoAdapterNeeded, depth: depth, hops: 1}
		}
		return entry{kind: kindDoesNotSupport, depth: depth, hops: 1}
	case AdapterFunc:
		return entry{kind: kindCallable, fn: v, depth: depth, hops: 1}
	case func(interface{}) (interface{}, error):
		return entry{kind: kindCallable, fn: v, depth: depth, hops: 1}
	default:
		panic(fmt.Sprintf("adapt: invalid adapter value %T", a))
	}
}

func (e entry) asAdapter() Adapter {
	switch e.kind {
	case kindNoAdapterNeeded:
		return NoAdapterNeeded
	case kindDoesNotSupport:
		return DoesNotSupport
	default:
		return e.fn
	}
}

func (e entry) apply(obj interface{}) (interface{}, error) {
	switch e.kind {
	case kindNoAdapterNeeded:
		return obj, nil
	case kindDoesNotSupport:
		return nil, nil
	default:
		return e.fn(obj)
	}
}

// dominates reports whether a strictly beats b under adapter arithmetic:
// shorter declared depth wins; equal depth, fewer composed hops wins; equal
// hops, sentinel rank decides.
func dominates(a, b entry) bool {
	if a.depth != b.depth {
		return a.depth < b.depth
	}
	if a.hops != b.hops {
		return a.hops < b.hops
	}
	return a.kind.rank() < b.kind.rank()
}

// equalStrength reports whether neither entry dominates the other, meaning
// registering both for the same slot is ambiguous (this includes two
// sentinels of the same kind).
func equalStrength(a, b entry) bool {
	return a.depth == b.depth && a.hops == b.hops && a.kind.rank() == b.kind.rank()
}

// compose builds a∘b: applying b first, then a. Depth and hops add; either
// side being DoesNotSupport short-circuits to DoesNotSupport; either side
// being NoAdapterNeeded yields the other side unchanged (beyond depth/hops).
func compose(outer, inner entry) entry {
	depth := outer.depth + inner.depth
	hops := outer.hops + inner.hops
	switch {
	case outer.kind == kindDoesNotSupport || inner.kind == kindDoesNotSupport:
		return entry{kind: kindDoesNotSupport, depth: depth, hops: hops}
	case outer.kind == kindNoAdapterNeeded:
		return entry{kind: inner.kind, fn: inner.fn, depth: depth, hops: hops}
	case inner.kind == kindNoAdapterNeeded:
		return entry{kind: outer.kind, fn: outer.fn, depth: depth, hops: hops}
	default:
		outerFn, innerFn := outer.fn, inner.fn
		return entry{
			kind: kindCallable,
			fn: func(obj interface{}) (interface{}, error) {
				mid, err := innerFn(obj)
				if err != nil {
					return nil, err
				}
				return outerFn(mid)
			},
			depth: depth,
			hops:  hops,
		}
	}
}

// AdapterChange describes a registration that may affect resolution for a
// protocol, delivered to listeners subscribed via AddListener.
type AdapterChange struct {
	Protocol *Protocol
	Via      *Protocol // set when the change arrived through RegisterImplied
	Depth    int
}

// ChangeListener is a weakly-held subscriber notified of AdapterChange
// events. Callers keep the only strong reference; Protocol stores a
// weak.Pointer and lets the listener vanish once nothing else pins it.
type ChangeListener struct {
	Notify func(AdapterChange)
}

// NewChangeListener wraps fn as a ChangeListener.
func NewChangeListener(fn func(AdapterChange)) *ChangeListener {
	return &ChangeListener{Notify: fn}
}

// universalRoot is the classic-instance / object root every MRO chain ends
// at, matching spec's "classic-instance and object root" requirement.
var universalRoot = reflect.TypeOf((*any)(nil)).Elem()

// MROProvider supplies the method-resolution-order-like chain for a type,
// the "type system bridge" external collaborators provide. The chain must
// end at a universal root.
type MROProvider interface {
	MRO(t reflect.Type) []reflect.Type
}

type defaultMRO struct{}

func (defaultMRO) MRO(t reflect.Type) []reflect.Type {
	if t == nil {
		return []reflect.Type{universalRoot}
	}
	return []reflect.Type{t, universalRoot}
}

// DefaultMRO is the structural-identity MRO used when a Protocol is not
// constructed with an explicit MROProvider: a type's chain is itself
// followed by the universal root, since Go has no class hierarchy to walk.
var DefaultMRO MROProvider = defaultMRO{}

// Protocol is an abstract capability advertised independently of the nominal
// type hierarchy. It owns adapters (type -> factory), implied protocols
// (protocol -> factory) and per-object overrides, per spec.md §4.1.
type Protocol struct {
	name string
	mro  MROProvider

	// InterfaceType, when set, lets Adapt short-circuit: any obj whose
	// type already implements it is returned unchanged.
	InterfaceType reflect.Type

	// ConformHook mirrors __conform__: an object's own opinion on
	// satisfying this protocol. Adapt does not call it; an object's
	// __conform__ opinion reaches Adapt through the Conformer interface.
	ConformHook func(obj interface{}) (interface{}, error)
	// AdaptHook mirrors __adapt__: the protocol's own opinion on a
	// candidate object. Left nil, it is never consulted.
	AdaptHook func(obj interface{}) (interface{}, error)

	mu             sync.Mutex
	adapters       map[reflect.Type]entry
	implied        map[*Protocol]entry
	objectEntries  map[interface{}]entry
	classRegistry  map[reflect.Type]bool
	listenerNext   uint64
	listeners      map[uint64]weak.Pointer[ChangeListener]
	logger         *logrus.Entry
}

// NewProtocol creates an empty protocol named name, used only for
// diagnostics and log fields.
func NewProtocol(name string, opts ...ProtocolOption) *Protocol {
	p := &Protocol{
		name:          name,
		mro:           DefaultMRO,
		adapters:      make(map[reflect.Type]entry),
		implied:       make(map[*Protocol]entry),
		objectEntries: make(map[interface{}]entry),
		classRegistry: make(map[reflect.Type]bool),
		listeners:     make(map[uint64]weak.Pointer[ChangeListener]),
		logger:        discardLogger().WithField("protocol", name),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProtocolOption configures a Protocol at construction time.
type ProtocolOption func(*Protocol)

// WithMRO overrides the type-system bridge used to walk a candidate's
// supertype chain.
func WithMRO(mro MROProvider) ProtocolOption {
	return func(p *Protocol) { p.mro = mro }
}

// WithLogger overrides the structured logger used for registration and
// ambiguity diagnostics.
func WithLogger(l *logrus.Entry) ProtocolOption {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l.WithField("protocol", p.name)
		}
	}
}

// Name returns the protocol's diagnostic name.
func (p *Protocol) Name() string { return p.name }

// RegisterType installs factory as the adapter from T to this protocol at
// the given depth. If an adapter is already registered for T, the stronger
// one (by adapter arithmetic) wins; if neither dominates, ErrAmbiguousAdapter
// is returned and the registry is left unchanged.
func (p *Protocol) RegisterType(t reflect.Type, factory Adapter, depth int) error {
	e := toEntry(factory, depth)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.installLocked(t, e); err != nil {
		return err
	}
	p.propagateToImpliedLocked(t, e)
	p.notifyLocked(AdapterChange{Protocol: p, Depth: depth})
	return nil
}

func (p *Protocol) installLocked(t reflect.Type, e entry) error {
	if existing, ok := p.adapters[t]; ok {
		if dominates(existing, e) {
			return nil
		}
		if !dominates(e, existing) {
			return ErrAmbiguousAdapter.New(t, describeEntry(existing), describeEntry(e), e.depth, e.hops)
		}
	}
	p.adapters[t] = e
	p.logger.WithFields(logrus.Fields{"type": t, "depth": e.depth, "hops": e.hops}).Debug("adapter registered")
	return nil
}

func (p *Protocol) propagateToImpliedLocked(t reflect.Type, base entry) {
	for implied, ext := range p.implied {
		composed := compose(ext, base)
		_ = implied.RegisterType(t, composed.asAdapter(), composed.depth)
	}
}

// RegisterImplied declares that this protocol implies other: anything
// satisfying this protocol satisfies other via factory. Every type already
// known to this protocol is propagated to other as (factory ∘ base_adapter);
// subsequent RegisterType calls on this protocol continue the propagation.
func (p *Protocol) RegisterImplied(other *Protocol, factory Adapter, depth int) error {
	e := toEntry(factory, depth)
	p.mu.Lock()
	known := make(map[reflect.Type]entry, len(p.adapters))
	for t, base := range p.adapters {
		known[t] = base
	}
	p.implied[other] = e
	p.mu.Unlock()

	for t, base := range known {
		composed := compose(e, base)
		if err := other.RegisterType(t, composed.asAdapter(), composed.depth); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.notifyLocked(AdapterChange{Protocol: p, Via: other, Depth: depth})
	p.mu.Unlock()
	return nil
}

// RegisterObject installs a per-object override, distinct from RegisterType:
// it answers Adapt for this exact object without making InstanceOf(cls)
// appear to provide the protocol. obj must be a comparable value (most
// usefully a pointer).
func (p *Protocol) RegisterObject(obj interface{}, factory Adapter, depth int) error {
	e := toEntry(factory, depth)
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.objectEntries[obj]; ok {
		if dominates(existing, e) {
			return nil
		}
		if !dominates(e, existing) {
			return ErrAmbiguousAdapter.New(obj, describeEntry(existing), describeEntry(e), e.depth, e.hops)
		}
	}
	p.objectEntries[obj] = e
	return nil
}

// ProvidesType reports whether t (or its MRO chain) has a registered
// adapter for this protocol that is not DoesNotSupport, without invoking any
// factory. This is the cheap capability check ProtocolCriterion needs at
// dispatch time — it must never run user adapter code.
func (p *Protocol) ProvidesType(t reflect.Type) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, step := range p.mro.MRO(t) {
		if e, ok := p.adapters[step]; ok {
			return e.kind != kindDoesNotSupport
		}
	}
	return false
}

// DeclareProvides marks t as providing this protocol at the class level only
// (cls.Provides(P)); it does not install an adapter and does not make
// InstanceOf(t).Provides(P) true unless t is also registered via
// RegisterType.
func (p *Protocol) DeclareProvides(t reflect.Type) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.classRegistry[t] = true
}

// ClassProvides reports whether t was declared, at the class level, to
// provide this protocol.
func (p *Protocol) ClassProvides(t reflect.Type) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.classRegistry[t]
}

// AddListener subscribes l to AdapterChange notifications. Protocol keeps
// only a weak reference; the returned token can be passed to RemoveListener
// for early, explicit unsubscription.
func (p *Protocol) AddListener(l *ChangeListener) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listenerNext++
	id := p.listenerNext
	p.listeners[id] = weak.Make(l)
	return id
}

// RemoveListener drops the subscription created by AddListener, if present.
func (p *Protocol) RemoveListener(token uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.listeners, token)
}

func (p *Protocol) notifyLocked(change AdapterChange) {
	for id, wp := range p.listeners {
		l := wp.Value()
		if l == nil {
			delete(p.listeners, id)
			continue
		}
		l.Notify(change)
	}
}

// resolve walks the MRO of reflect.TypeOf(obj) (or uses an object override,
// if any) and returns the first registered entry found, if any.
func (p *Protocol) resolve(obj interface{}) (entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if obj != nil {
		if isComparable(obj) {
			if e, ok := p.objectEntries[obj]; ok {
				return e, true
			}
		}
	}

	t := reflect.TypeOf(obj)
	for _, step := range p.mro.MRO(t) {
		if e, ok := p.adapters[step]; ok {
			return e, true
		}
	}
	return entry{}, false
}

func isComparable(obj interface{}) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	t := reflect.TypeOf(obj)
	return t != nil && t.Comparable()
}

func describeEntry(e entry) string {
	switch e.kind {
	case kindNoAdapterNeeded:
		return "NoAdapterNeeded"
	case kindDoesNotSupport:
		return "DoesNotSupport"
	default:
		return "callable"
	}
}
