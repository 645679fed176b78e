// Package dispatch implements predicate-dispatch generic functions: callables
// whose body is chosen, per invocation, from a set of methods guarded by
// signatures over arbitrary expressions of the arguments.
//
// A GenericFunction accumulates cases — (Signature, method) pairs — and
// lazily compiles them into a decision DAG the first time it is called after
// a change. Compilation picks, at each node, the expression whose criterion
// index best discriminates the remaining cases (best_split); dispatch walks
// the compiled DAG, memoising expression values and materialising any node
// not yet built.
//
// The package depends on pkg/adapt only for ProtocolCriterion, which answers
// "does this object's class satisfy protocol P" by resolving against an
// *adapt.Protocol and subscribing to its change bus so a later registration
// can invalidate already-compiled dispatch decisions without a full Clear.
package dispatch
