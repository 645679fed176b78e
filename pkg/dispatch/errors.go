package dispatch

import (
	"gopkg.in/src-d/go-errors.v1"
)

// ErrNoApplicableMethods is raised from Call when no case's signature is
// satisfied by the argument tuple.
var ErrNoApplicableMethods = errors.NewKind("%s: no applicable method for arguments %v")

// ErrAmbiguousMethod is raised from Call when, within one qualifier group
// (around, before, primary or after), two applicable methods are equally
// specific and their signatures are not mutually equivalent.
var ErrAmbiguousMethod = errors.NewKind("ambiguous method: cases %d and %d are equally specific")

// ErrCriterionFamilyMismatch is raised from And/Or construction when the
// supplied criteria do not share a dispatch family.
var ErrCriterionFamilyMismatch = errors.NewKind("criteria do not share a dispatch family: %v")

// ErrInvalidInequalityOperator is raised from NewInequality for any operator
// outside {<,<=,=,!=,>=,>}.
var ErrInvalidInequalityOperator = errors.NewKind("invalid inequality operator: %q")

// ErrNameNotFound is raised when an expression refers to an argument name
// the generic function's signature does not declare.
var ErrNameNotFound = errors.NewKind("argument name not found: %q")

// errInvariant marks an internal invariant violation — a bug in the engine
// itself rather than a user-facing failure mode. It is never recovered.
var errInvariant = errors.NewKind("dispatch: invariant violation: %s")
