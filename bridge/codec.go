package bridge

import (
	"context"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/memview"
)

var (
	contextType     = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	handleType      = reflect.TypeOf(heap.Handle(0))
	float32ViewType = reflect.TypeOf(memview.Float32View{})
)

var (
	flatI32    = []api.ValueType{api.ValueTypeI32}
	flatI32x2  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	flatI64    = []api.ValueType{api.ValueTypeI64}
	flatF32    = []api.ValueType{api.ValueTypeF32}
	flatF64    = []api.ValueType{api.ValueTypeF64}
	flatNone   = []api.ValueType{}
	flatHandle = flatI32
)

// liftFunc decodes one Go argument from its flat guest words. It panics
// with a contract violation when the guest passed something unusable.
type liftFunc func(b *Bridge, name string, words []uint64) reflect.Value

// lowerFunc encodes a Go result into stack[0], or through retptr.
type lowerFunc func(ctx context.Context, b *Bridge, v reflect.Value, stack []uint64, retptr uint32) error

type paramCodec struct {
	flat []api.ValueType
	lift liftFunc
}

type resultCodec struct {
	flat   []api.ValueType
	retptr bool
	lower  lowerFunc
}

func violation(name string, cause error) *errors.Error {
	return errors.ContractViolation(errors.PhaseCall, name, cause)
}

func paramFor(t reflect.Type) paramCodec {
	switch t {
	case handleType:
		return paramCodec{flatHandle, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			return reflect.ValueOf(heap.Handle(uint32(w[0])))
		}}
	case float32ViewType:
		return paramCodec{flatI32x2, func(b *Bridge, name string, w []uint64) reflect.Value {
			view, err := b.marshal.ReadF32Slice(uint32(w[0]), uint32(w[1]))
			if err != nil {
				panic(violation(name, err))
			}
			return reflect.ValueOf(view)
		}}
	}

	switch t.Kind() {
	case reflect.String:
		return paramCodec{flatI32x2, func(b *Bridge, name string, w []uint64) reflect.Value {
			s, err := b.marshal.ReadString(uint32(w[0]), uint32(w[1]))
			if err != nil {
				panic(violation(name, err))
			}
			return reflect.ValueOf(s).Convert(t)
		}}
	case reflect.Bool:
		return paramCodec{flatI32, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			return reflect.ValueOf(uint32(w[0]) != 0).Convert(t)
		}}
	case reflect.Int32, reflect.Int:
		return paramCodec{flatI32, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			v := reflect.New(t).Elem()
			v.SetInt(int64(api.DecodeI32(w[0])))
			return v
		}}
	case reflect.Uint32:
		return paramCodec{flatI32, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			v := reflect.New(t).Elem()
			v.SetUint(uint64(api.DecodeU32(w[0])))
			return v
		}}
	case reflect.Int64:
		return paramCodec{flatI64, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			v := reflect.New(t).Elem()
			v.SetInt(int64(w[0]))
			return v
		}}
	case reflect.Uint64:
		return paramCodec{flatI64, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			v := reflect.New(t).Elem()
			v.SetUint(w[0])
			return v
		}}
	case reflect.Float32:
		return paramCodec{flatF32, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			v := reflect.New(t).Elem()
			v.SetFloat(float64(api.DecodeF32(w[0])))
			return v
		}}
	case reflect.Float64:
		return paramCodec{flatF64, func(_ *Bridge, _ string, w []uint64) reflect.Value {
			v := reflect.New(t).Elem()
			v.SetFloat(api.DecodeF64(w[0]))
			return v
		}}
	}

	return paramCodec{flatHandle, func(b *Bridge, name string, w []uint64) reflect.Value {
		h := heap.Handle(uint32(w[0]))
		v, ok := b.heap.Get(h)
		if !ok {
			panic(violation(name, errors.StaleHandle(errors.PhaseHeap, uint32(h))))
		}
		rv, ok := assignable(v, t)
		if !ok {
			panic(violation(name, errors.TypeMismatch(errors.PhaseCall, name, t.String(), v)))
		}
		return rv
	}}
}

// assignable converts a heap value to the parameter type t. Nil, undefined
// and null satisfy any nilable type as its zero value.
func assignable(v any, t reflect.Type) (reflect.Value, bool) {
	if v != nil {
		rv := reflect.ValueOf(v)
		if rv.Type().AssignableTo(t) {
			return rv, true
		}
	}
	if heap.IsUndefined(v) || heap.IsNull(v) {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), true
		}
	}
	return reflect.Value{}, false
}

func resultFor(t reflect.Type) resultCodec {
	if t == handleType {
		return resultCodec{flat: flatHandle, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = uint64(uint32(v.Uint()))
			return nil
		}}
	}

	switch t.Kind() {
	case reflect.String:
		return resultCodec{flat: flatNone, retptr: true, lower: func(ctx context.Context, b *Bridge, v reflect.Value, _ []uint64, retptr uint32) error {
			return b.marshal.WriteStringTo(ctx, retptr, v.String())
		}}
	case reflect.Bool:
		return resultCodec{flat: flatI32, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = 0
			if v.Bool() {
				stack[0] = 1
			}
			return nil
		}}
	case reflect.Int32, reflect.Int:
		return resultCodec{flat: flatI32, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = api.EncodeI32(int32(v.Int()))
			return nil
		}}
	case reflect.Uint32:
		return resultCodec{flat: flatI32, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = api.EncodeU32(uint32(v.Uint()))
			return nil
		}}
	case reflect.Int64:
		return resultCodec{flat: flatI64, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = api.EncodeI64(v.Int())
			return nil
		}}
	case reflect.Uint64:
		return resultCodec{flat: flatI64, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = v.Uint()
			return nil
		}}
	case reflect.Float32:
		return resultCodec{flat: flatF32, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = api.EncodeF32(float32(v.Float()))
			return nil
		}}
	case reflect.Float64:
		return resultCodec{flat: flatF64, lower: func(_ context.Context, _ *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
			stack[0] = api.EncodeF64(v.Float())
			return nil
		}}
	}

	return resultCodec{flat: flatHandle, lower: func(_ context.Context, b *Bridge, v reflect.Value, stack []uint64, _ uint32) error {
		var x any
		if v.IsValid() {
			x = v.Interface()
		}
		stack[0] = uint64(b.Wrap(x))
		return nil
	}}
}
