// Package errors provides structured error types for the wasm-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the offending import name, the Go type,
// the handle or value involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindTypeMismatch).
//		Import("console_log").
//		GoType("*hostenv.EventTarget").
//		Detail("handle %d resolves to %T", h, v).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseMarshal, ptr, length, size)
//	err := errors.StaleHandle(errors.PhaseHeap, h)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
