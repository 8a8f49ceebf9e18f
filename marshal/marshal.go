// Package marshal moves strings, words and float arrays across the guest
// boundary.
//
// All accessors reacquire their view from the memview.Cache at the moment
// of use. Nothing returned here survives a call that may grow guest memory,
// except strings, which are copied into Go memory.
package marshal

import (
	"context"
	"reflect"
	"strings"
	"unicode/utf8"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/memview"
)

// Marshaller converts between guest memory ranges and host values.
type Marshaller struct {
	views *memview.Cache
	alloc wasmbridge.Allocator
}

// New creates a marshaller over views that requests scratch memory from
// alloc.
func New(views *memview.Cache, alloc wasmbridge.Allocator) *Marshaller {
	return &Marshaller{views: views, alloc: alloc}
}

// Views returns the underlying view cache.
func (m *Marshaller) Views() *memview.Cache {
	return m.views
}

// ReadString decodes the UTF-8 bytes at [ptr, ptr+length). Invalid
// sequences decode to U+FFFD.
func (m *Marshaller) ReadString(ptr, length uint32) (string, error) {
	if length == 0 {
		return "", nil
	}
	v := m.views.Uint8()
	if !v.InBounds(ptr, length) {
		return "", errors.OutOfBounds(errors.PhaseMarshal, ptr, length, v.Len())
	}
	raw := v.Slice(ptr, ptr+length)
	if !utf8.Valid(raw) {
		return strings.ToValidUTF8(string(raw), "\uFFFD"), nil
	}
	return string(raw), nil
}

// WriteString copies s into freshly allocated guest memory and returns its
// location. An empty string allocates nothing and returns (0, 0).
func (m *Marshaller) WriteString(ctx context.Context, s string) (ptr, length uint32, err error) {
	length = uint32(len(s))
	if length == 0 {
		return 0, 0, nil
	}
	if m.alloc == nil {
		return 0, 0, errors.NotInitialized(errors.PhaseMarshal, "guest allocator")
	}

	ptr, err = m.alloc.Malloc(ctx, length)
	if err != nil {
		return 0, 0, errors.AllocationFailed(errors.PhaseMarshal, length, err)
	}

	// The allocator may have grown memory.
	v := m.views.Uint8()
	if !v.InBounds(ptr, length) {
		return 0, 0, errors.OutOfBounds(errors.PhaseMarshal, ptr, length, v.Len())
	}
	copy(v.Slice(ptr, ptr+length), s)
	return ptr, length, nil
}

// WriteStringTo writes s to guest memory and stores (ptr, len) in the
// two-word out-parameter at retptr.
func (m *Marshaller) WriteStringTo(ctx context.Context, retptr uint32, s string) error {
	ptr, length, err := m.WriteString(ctx, s)
	if err != nil {
		return err
	}
	return m.WritePair(retptr, ptr, length)
}

// ReadF32Slice returns a zero-copy view of length floats starting at ptr.
func (m *Marshaller) ReadF32Slice(ptr, length uint32) (memview.Float32View, error) {
	if ptr%4 != 0 {
		return memview.Float32View{}, errors.Unaligned(errors.PhaseMarshal, ptr, 4)
	}
	v := m.views.Float32()
	start := ptr / 4
	if uint64(start)+uint64(length) > uint64(v.Len()) {
		return memview.Float32View{}, errors.OutOfBounds(errors.PhaseMarshal, ptr, length*4, v.Len()*4)
	}
	return v.Sub(start, start+length), nil
}

// ReadU32 reads the aligned word at ptr.
func (m *Marshaller) ReadU32(ptr uint32) (uint32, error) {
	v, err := m.words(ptr, 1)
	if err != nil {
		return 0, err
	}
	return v.Get(ptr / 4), nil
}

// WriteU32 stores an aligned word at ptr.
func (m *Marshaller) WriteU32(ptr uint32, value uint32) error {
	v, err := m.words(ptr, 1)
	if err != nil {
		return err
	}
	v.Set(ptr/4, value)
	return nil
}

// WritePair stores two consecutive aligned words at ptr.
func (m *Marshaller) WritePair(ptr, first, second uint32) error {
	v, err := m.words(ptr, 2)
	if err != nil {
		return err
	}
	v.Set(ptr/4, first)
	v.Set(ptr/4+1, second)
	return nil
}

// WriteU8 stores a byte at ptr.
func (m *Marshaller) WriteU8(ptr uint32, value uint8) error {
	v := m.views.Uint8()
	if !v.InBounds(ptr, 1) {
		return errors.OutOfBounds(errors.PhaseMarshal, ptr, 1, v.Len())
	}
	v.Set(ptr, value)
	return nil
}

// Read copies length bytes starting at offset.
func (m *Marshaller) Read(offset, length uint32) ([]byte, error) {
	v := m.views.Uint8()
	if !v.InBounds(offset, length) {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, offset, length, v.Len())
	}
	out := make([]byte, length)
	copy(out, v.Slice(offset, offset+length))
	return out, nil
}

// Write copies data into guest memory at offset.
func (m *Marshaller) Write(offset uint32, data []byte) error {
	v := m.views.Uint8()
	n := uint32(len(data))
	if !v.InBounds(offset, n) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, n, v.Len())
	}
	copy(v.Slice(offset, offset+n), data)
	return nil
}

// Size returns the current guest memory size in bytes.
func (m *Marshaller) Size() uint32 {
	return m.views.Size()
}

func (m *Marshaller) words(ptr, n uint32) (memview.Uint32View, error) {
	if ptr%4 != 0 {
		return memview.Uint32View{}, errors.Unaligned(errors.PhaseMarshal, ptr, 4)
	}
	v := m.views.Uint32()
	if uint64(ptr/4)+uint64(n) > uint64(v.Len()) {
		return memview.Uint32View{}, errors.OutOfBounds(errors.PhaseMarshal, ptr, n*4, v.Len()*4)
	}
	return v, nil
}

// IsLikeNone reports whether v is returned to the guest as handle 0:
// undefined, null, or a nil pointer, map, slice, func or channel.
func IsLikeNone(v any) bool {
	if heap.IsUndefined(v) || heap.IsNull(v) {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

var (
	_ wasmbridge.Memory      = (*Marshaller)(nil)
	_ wasmbridge.MemorySizer = (*Marshaller)(nil)
)
