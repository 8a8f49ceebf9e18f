package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental/table"

	"github.com/wippyai/wasm-bridge/errors"
)

// guest adapts a wazero module to bridge.Guest.
type guest struct {
	mod    api.Module
	malloc api.Function
}

func newGuest(mod api.Module, mallocExport string) *guest {
	return &guest{
		mod:    mod,
		malloc: mod.ExportedFunction(mallocExport),
	}
}

// Buffer returns the whole of guest memory. wazero returns a view, not a
// copy, so the slice identity changes exactly when memory is reallocated.
func (g *guest) Buffer() []byte {
	mem := g.mod.Memory()
	if mem == nil {
		return nil
	}
	buf, ok := mem.Read(0, mem.Size())
	if !ok {
		return nil
	}
	return buf
}

// Malloc calls the guest allocator export.
func (g *guest) Malloc(ctx context.Context, size uint32) (uint32, error) {
	if g.malloc == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "allocator export", "malloc")
	}
	// The allocator may re-enter the host, so each call gets its own stack.
	stack := []uint64{uint64(size)}
	if err := g.malloc.CallWithStack(ctx, stack); err != nil {
		return 0, err
	}
	return uint32(stack[0]), nil
}

// CallIndirect invokes entry index of table 0 with i32 parameters and
// results.
func (g *guest) CallIndirect(ctx context.Context, index uint32, results int, params ...uint64) ([]uint64, error) {
	fn, err := g.lookup(index, len(params), results)
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, params...)
}

func (g *guest) lookup(index uint32, params, results int) (fn api.Function, err error) {
	// LookupFunction panics on a missing entry or a signature mismatch.
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseRuntime, errors.KindNotFound).
				Value(index).
				Detail("function table entry %d: %v", index, r).
				Build()
		}
	}()
	return table.LookupFunction(g.mod, 0, index, i32s(params), i32s(results)), nil
}

func i32s(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = api.ValueTypeI32
	}
	return out
}

func (g *guest) String() string {
	return fmt.Sprintf("guest(%s)", g.mod.Name())
}
