// Package wasmbridge connects a WebAssembly guest with its own flat linear
// memory to a Go host whose values the guest cannot address directly.
//
// The guest names host values through small integer handles, passes strings
// and float arrays through its linear memory, registers callbacks as
// function-table entries, and observes host failures through a two-word
// exception slot. This package tree implements the generic mechanism every
// binding is built from.
//
// # Architecture Overview
//
//	wasmbridge/         Root package with core Memory and Allocator interfaces
//	├── heap/           Object handle table with reserved constants and free list
//	├── memview/        Typed views over guest memory, rebuilt after growth
//	├── marshal/        Strings and float slices across the boundary
//	├── closure/        Host-callable wrappers around guest function-table entries
//	├── bridge/         Call shims, bridge primitives, exception protocol
//	├── engine/         wazero integration (host module, guest adapter)
//	├── loader/         Bootstrap from compiled modules, bytes, files or URLs
//	├── hostenv/        Small sample host: console, frame loop, event targets
//	└── errors/         Structured error types
//
// # Quick Start
//
//	eng, err := engine.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	b := bridge.New(nil)
//	b.Register("console_log", func(v any) { fmt.Println(v) })
//
//	l := loader.New(eng, nil)
//	inst, err := l.Load(ctx, loader.FromLocation("app.wasm"), b)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
// # Execution Model
//
// Guest and host share one call stack. A guest call may enter a host
// operation which may invoke a guest callback which may call back into the
// host, arbitrarily nested. A Bridge and the instance it is attached to must
// be used by a single goroutine.
package wasmbridge
