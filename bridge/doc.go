// Package bridge assembles the imported environment a guest module links
// against: the built-in handle, string, number and closure primitives plus
// any host functions registered by the embedder.
//
// # Host functions
//
// Register turns an ordinary Go function into a call shim by reflection:
//
//	b.Register("console_log", func(msg string) { ... })
//	b.Register("element_by_id", func(doc *Document, id string) (*Element, error) { ... })
//
// Parameters map to guest values as follows:
//
//	context.Context           not passed by the guest; must come first
//	string                    (ptr, len) UTF-8 bytes in guest memory
//	bool, int, int32, uint32  i32
//	int64, uint64             i64
//	float32, float64          f32, f64
//	memview.Float32View       (ptr, len) zero-copy float array
//	heap.Handle               raw i32 handle
//	anything else             i32 handle, resolved and type-checked
//
// A string result adds a leading retptr parameter that receives
// (ptr, len). Any other non-scalar result is returned as a fresh handle, or
// 0 when it is nil, undefined or null.
//
// A trailing error result makes the shim fallible: it takes a trailing
// exnptr parameter, and a returned error (or a panic in the host function)
// is written to the two-word exception slot at exnptr instead of unwinding
// into the guest. Contract violations, such as a stale handle or an
// out-of-bounds range, are not caught: they trap the guest call.
//
// # Lifecycle
//
// A Bridge is created before the guest is instantiated and attached to it
// afterwards; shims called before Attach trap with not_initialized. A
// Bridge serves one guest on one goroutine.
package bridge
