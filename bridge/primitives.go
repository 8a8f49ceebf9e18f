package bridge

import (
	"context"

	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
)

// Built-in import names.
const (
	ObjectCloneRef = "__wbindgen_object_clone_ref"
	ObjectDropRef  = "__wbindgen_object_drop_ref"
	StringNew      = "__wbindgen_string_new"
	StringGet      = "__wbindgen_string_get"
	NumberNew      = "__wbindgen_number_new"
	NumberGet      = "__wbindgen_number_get"
	BooleanGet     = "__wbindgen_boolean_get"
	IsNull         = "__wbindgen_is_null"
	IsUndefined    = "__wbindgen_is_undefined"
	CbDrop         = "__wbindgen_cb_drop"
	CbForget       = "__wbindgen_cb_forget"
	ClosureNew     = "__wbindgen_closure_new"
	MemoryExport   = "__wbindgen_memory"
	Throw          = "__wbindgen_throw"
	Rethrow        = "__wbindgen_rethrow"
)

func (b *Bridge) registerPrimitives() {
	b.MustRegister(ObjectCloneRef, func(h heap.Handle) heap.Handle {
		if _, ok := b.heap.Get(h); !ok {
			panic(violation(ObjectCloneRef, errors.StaleHandle(errors.PhaseHeap, uint32(h))))
		}
		return b.heap.Clone(h)
	})
	b.MustRegister(ObjectDropRef, func(h heap.Handle) {
		b.heap.Drop(h)
	})
	b.MustRegister(StringNew, func(s string) heap.Handle {
		return b.heap.Allocate(s)
	})
	b.MustRegister(StringGet, b.stringGet)
	b.MustRegister(NumberNew, func(n float64) heap.Handle {
		return b.heap.Allocate(n)
	})
	b.MustRegister(NumberGet, b.numberGet)
	b.MustRegister(BooleanGet, func(h heap.Handle) int32 {
		switch b.resolve(BooleanGet, h) {
		case true:
			return 1
		case false:
			return 0
		default:
			return 2
		}
	})
	b.MustRegister(IsNull, func(h heap.Handle) bool {
		return heap.IsNull(b.resolve(IsNull, h))
	})
	b.MustRegister(IsUndefined, func(h heap.Handle) bool {
		return heap.IsUndefined(b.resolve(IsUndefined, h))
	})
	b.MustRegister(CbDrop, b.cbDrop)
	b.MustRegister(CbForget, func(h heap.Handle) {
		b.heap.Drop(h)
	})
	b.MustRegister(ClosureNew, func(a, env, invoke, destroy, arity uint32) heap.Handle {
		fn := b.closures.New(invoke, destroy, a, env, closure.Signature{Params: arity})
		return b.heap.Allocate(fn)
	})
	b.MustRegister(MemoryExport, func() heap.Handle {
		return b.heap.Allocate(b.marshal)
	})
	b.MustRegister(Throw, func(msg string) {
		panic(errors.GuestThrow(msg))
	})
	b.MustRegister(Rethrow, func(h heap.Handle) {
		v, ok := b.heap.Take(h)
		if !ok {
			panic(violation(Rethrow, errors.StaleHandle(errors.PhaseHeap, uint32(h))))
		}
		panic(&ThrownError{Value: v})
	})
}

// RegisterClosureWrapper adds a fixed-index closure factory: an import
// (a, b, _) -> handle whose trampoline and destructor table indices are
// known when the guest is built.
func (b *Bridge) RegisterClosureWrapper(name string, invoke, destroy uint32, sig closure.Signature) error {
	if sig.Results > 1 {
		return errors.Registration(errors.PhaseHost, b.cfg.Namespace, name,
			errors.Unsupported(errors.PhaseClosure, "closures return at most one handle"))
	}
	return b.Register(name, func(a, env, _ uint32) heap.Handle {
		fn := b.closures.New(invoke, destroy, a, env, sig)
		return b.heap.Allocate(fn)
	})
}

func (b *Bridge) resolve(name string, h heap.Handle) any {
	v, ok := b.heap.Get(h)
	if !ok {
		panic(violation(name, errors.StaleHandle(errors.PhaseHeap, uint32(h))))
	}
	return v
}

// stringGet writes (ptr, len) of a string value to retptr, or (0, 0) when
// the value is not a string.
func (b *Bridge) stringGet(ctx context.Context, h heap.Handle, retptr uint32) {
	s, ok := b.resolve(StringGet, h).(string)
	if !ok {
		if err := b.marshal.WritePair(retptr, 0, 0); err != nil {
			panic(violation(StringGet, err))
		}
		return
	}
	if err := b.marshal.WriteStringTo(ctx, retptr, s); err != nil {
		panic(violation(StringGet, err))
	}
}

// numberGet returns a numeric value, or returns 0 and sets the byte at
// invalidptr when the value is not a number. Success leaves the byte alone.
func (b *Bridge) numberGet(h heap.Handle, invalidptr uint32) float64 {
	n, ok := toFloat(b.resolve(NumberGet, h))
	if ok {
		return n
	}
	if err := b.marshal.WriteU8(invalidptr, 1); err != nil {
		panic(violation(NumberGet, err))
	}
	return 0
}

func (b *Bridge) cbDrop(ctx context.Context, h heap.Handle) bool {
	v, ok := b.heap.Take(h)
	if !ok {
		panic(violation(CbDrop, errors.StaleHandle(errors.PhaseHeap, uint32(h))))
	}
	fn, ok := v.(*closure.Func)
	if !ok {
		panic(violation(CbDrop, errors.TypeMismatch(errors.PhaseClosure, CbDrop, "*closure.Func", v)))
	}
	destroyed, err := fn.Release(ctx)
	if err != nil {
		panic(violation(CbDrop, err))
	}
	return destroyed
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
