// Package closure turns guest function-table entries into host-callable
// functions with explicit lifetimes.
//
// A guest callback is a pair of table indices (invoke and destroy) plus two
// guest words: the captured context a and an environment word b. The
// Registry keeps one record per callback in an arena; a Func is the
// host-side object pointing at that record.
//
// # Lifecycle
//
//	Armed      created with one reference, owned by the guest
//	Executing  at least one invocation in flight (nesting allowed)
//	Released   reference count reached zero; destroy(a, b) ran once
//
// Every invocation holds its own reference for its duration, so the
// destructor never runs while any invocation is on the stack. Releasing
// the last reference invalidates the arena slot before calling destroy;
// a Func for a released slot refuses to run.
//
// A guest that "forgets" a closure drops only its handle. The record stays
// armed until the host releases the reference it holds; Registry.Close does
// not run destructors.
package closure
