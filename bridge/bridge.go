package bridge

import (
	"context"

	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/marshal"
	"github.com/wippyai/wasm-bridge/memview"
)

// Guest is what the bridge needs from an instantiated guest: its current
// memory buffer, its allocator and its function table.
type Guest interface {
	memview.Source
	wasmbridge.Allocator
	closure.Table
}

// Bridge owns the host side of one guest: the handle heap, the view cache,
// the closure registry and the call shims.
type Bridge struct {
	cfg      Config
	heap     *heap.Table
	guest    Guest
	views    *memview.Cache
	marshal  *marshal.Marshaller
	closures *closure.Registry
	shims    map[string]*Shim
	order    []*Shim
}

// New creates a bridge with the built-in primitives registered.
func New(cfg *Config) *Bridge {
	c := cfg.withDefaults()
	b := &Bridge{
		cfg:   c,
		heap:  heap.New(&heap.Config{Reserved: c.Reserved}),
		shims: make(map[string]*Shim),
	}
	b.registerPrimitives()
	return b
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Namespace returns the import module name.
func (b *Bridge) Namespace() string {
	return b.cfg.Namespace
}

// Heap returns the handle table.
func (b *Bridge) Heap() *heap.Table {
	return b.heap
}

// Views returns the memory view cache, or nil before Attach.
func (b *Bridge) Views() *memview.Cache {
	return b.views
}

// Marshal returns the marshaller, or nil before Attach.
func (b *Bridge) Marshal() *marshal.Marshaller {
	return b.marshal
}

// Closures returns the closure registry, or nil before Attach.
func (b *Bridge) Closures() *closure.Registry {
	return b.closures
}

// Attached reports whether a guest is attached.
func (b *Bridge) Attached() bool {
	return b.guest != nil
}

// Attach binds the bridge to an instantiated guest. It must be called
// before the guest runs any code that imports from the bridge.
func (b *Bridge) Attach(g Guest) {
	b.guest = g
	b.views = memview.NewCache(g)
	b.marshal = marshal.New(b.views, g)
	b.closures = closure.NewRegistry(g, b.heap)

	Logger().Debug("guest attached",
		zap.String("namespace", b.cfg.Namespace),
		zap.Int("shims", len(b.order)))
}

// Close detaches the guest. Live closures are invalidated without running
// their destructors.
func (b *Bridge) Close() {
	if b.closures != nil {
		b.closures.Close()
	}
	b.guest = nil
	b.views = nil
	b.marshal = nil
	b.closures = nil
}

// Imports returns the shims in registration order.
func (b *Bridge) Imports() []*Shim {
	out := make([]*Shim, len(b.order))
	copy(out, b.order)
	return out
}

// Lookup returns the shim registered under name.
func (b *Bridge) Lookup(name string) (*Shim, bool) {
	s, ok := b.shims[name]
	return s, ok
}

// Wrap returns a handle for v. Nil and undefined map to HandleUndefined,
// null and booleans map to their reserved handles; anything else gets a
// fresh slot.
func (b *Bridge) Wrap(v any) heap.Handle {
	switch x := v.(type) {
	case bool:
		if x {
			return heap.HandleTrue
		}
		return heap.HandleFalse
	case heap.NullType:
		return heap.HandleNull
	}
	if marshal.IsLikeNone(v) {
		return heap.HandleUndefined
	}
	return b.heap.Allocate(v)
}

// Call invokes a closure from the host side and logs failures. It is a
// convenience for host environments dispatching events.
func (b *Bridge) Call(ctx context.Context, fn *closure.Func, args ...any) (any, error) {
	out, err := fn.Call(ctx, args...)
	if err != nil {
		Logger().Debug("closure call failed", zap.Stringer("closure", fn), zap.Error(err))
	}
	return out, err
}

func (b *Bridge) mustAttached(name string) {
	if b.guest == nil {
		panic(errors.New(errors.PhaseCall, errors.KindNotInitialized).
			Import(name).
			Detail("bridge is not attached to a guest").
			Build())
	}
}
