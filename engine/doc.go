// Package engine runs bridge guests on wazero.
//
// # Architecture
//
//	Engine    - owns the wazero runtime
//	Module    - a compiled guest, inspectable before instantiation
//	Instance  - a running guest linked against a bridge.Bridge
//
// # Instantiation Flow
//
//  1. Engine.Compile() compiles the guest binary
//  2. Engine.Instantiate() checks that the bridge provides every import in
//     its namespace, builds a host module from the bridge shims, and
//     instantiates the guest without running start functions
//  3. The bridge is attached to the guest: its memory, its allocator
//     export and its function table
//  4. Instance.Start() runs the guest entry point once
//
// A wazero runtime holds one module per name, so an Engine runs at most one
// live Instance per bridge namespace. Close the Instance (or use another
// Engine) before instantiating a second guest against the same namespace.
//
// # Errors
//
// Guest calls that fail return *errors.Error with phase runtime. The kind
// is taken from the underlying failure when it is a bridge error
// (guest_throw, contract_violation, ...) and is trap otherwise; the
// original error stays reachable through errors.Unwrap.
package engine
