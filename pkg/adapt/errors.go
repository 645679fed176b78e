package adapt

import (
	"gopkg.in/src-d/go-errors.v1"
)

// ErrAmbiguousAdapter is raised from RegisterType/RegisterImplied/RegisterObject
// when two candidate adapters for the same slot are incomparable: neither
// has a strictly shorter depth, at equal depth neither has a strictly
// smaller hop count, and both are of the same kind (two callables, or two of
// the same sentinel).
var ErrAmbiguousAdapter = errors.NewKind("ambiguous adapter for %v: %s and %s both have depth %d, hops %d")

// errNoAdapterKind backs Adapt's default factory: no hook, no registered
// adapter, no Default and no Factory answered.
var errNoAdapterKind = errors.NewKind("no adapter found for %v to protocol %s")
