package adapt

import (
	"reflect"
)

// Conformer is implemented by objects with an opinion on adapting themselves
// to a protocol (the __conform__ hook of spec.md §4.1).
type Conformer interface {
	Conform(protocol *Protocol) (interface{}, error)
}

// Options configures a single Adapt call.
type Options struct {
	// Default is returned verbatim if no other resolution path answers and
	// HasDefault is set (WithDefault sets both, so a nil Default can be
	// supplied). With HasDefault unset and Factory nil, the package default
	// factory runs, which raises.
	Default      interface{}
	HasDefault   bool
	Factory      func(obj interface{}, protocol *Protocol) (interface{}, error)
}

// Option configures an Adapt call.
type Option func(*Options)

// WithDefault supplies the fallback value returned when no hook or adapter
// answers.
func WithDefault(value interface{}) Option {
	return func(o *Options) {
		o.Default = value
		o.HasDefault = true
	}
}

// WithFactory supplies the fallback factory invoked (in place of the raising
// default factory) when no hook or adapter answers and no Default is set.
func WithFactory(factory func(obj interface{}, protocol *Protocol) (interface{}, error)) Option {
	return func(o *Options) { o.Factory = factory }
}

// Adapt resolves obj against protocol following spec.md §4.1's order:
//
//  1. obj is returned unchanged if its type already implements
//     protocol.InterfaceType.
//  2. obj.Conform(protocol) is tried, if obj implements Conformer.
//  3. protocol.AdaptHook(obj) is tried, if set.
//  4. The protocol's registered adapters are resolved via MRO walk.
//  5. Options.Default, if supplied, is returned.
//  6. Options.Factory is invoked, if supplied.
//  7. The package default factory runs, which always returns an error.
//
// A hook (Conform, AdaptHook, or a registered AdapterFunc) that returns a
// non-nil error propagates immediately: that is a bug inside the hook, not a
// declination. A hook that is simply absent, or that returns (nil, nil), is
// treated as "declines, try the next resolution step" — this is the Go
// rendering of spec's distinction between an internal exception (propagates)
// and the lookup machinery's own null-result handling (swallowed).
func Adapt(obj interface{}, protocol *Protocol, opts ...Option) (interface{}, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	if protocol.InterfaceType != nil && obj != nil {
		if reflect.TypeOf(obj).Implements(protocol.InterfaceType) {
			return obj, nil
		}
	}

	if c, ok := obj.(Conformer); ok {
		v, err := c.Conform(protocol)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}

	if protocol.AdaptHook != nil {
		v, err := protocol.AdaptHook(obj)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}

	if e, ok := protocol.resolve(obj); ok {
		v, err := e.apply(obj)
		if err != nil {
			return nil, err
		}
		if e.kind != kindDoesNotSupport && v != nil {
			return v, nil
		}
	}

	if o.HasDefault {
		return o.Default, nil
	}
	if o.Factory != nil {
		return o.Factory(obj, protocol)
	}
	return nil, errNoAdapterKind.New(obj, protocol.Name())
}
