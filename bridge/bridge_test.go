package bridge

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"runtime"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
	"github.com/wippyai/wasm-bridge/memview"
)

// fakeGuest is a bump-allocating guest memory with a scripted function
// table.
type fakeGuest struct {
	mem   []byte
	top   uint32
	table map[uint32]func(ctx context.Context, params []uint64) []uint64
	calls map[uint32]int
}

func newFakeGuest(size int) *fakeGuest {
	return &fakeGuest{
		mem:   make([]byte, size),
		top:   1024,
		table: make(map[uint32]func(context.Context, []uint64) []uint64),
		calls: make(map[uint32]int),
	}
}

func (g *fakeGuest) Buffer() []byte { return g.mem }

func (g *fakeGuest) Malloc(_ context.Context, size uint32) (uint32, error) {
	ptr := (g.top + 7) &^ 7
	if int(ptr+size) > len(g.mem) {
		grown := make([]byte, int(ptr+size)*2)
		copy(grown, g.mem)
		g.mem = grown
	}
	g.top = ptr + size
	return ptr, nil
}

func (g *fakeGuest) CallIndirect(ctx context.Context, index uint32, _ int, params ...uint64) ([]uint64, error) {
	g.calls[index]++
	fn, ok := g.table[index]
	if !ok {
		return nil, errors.NotFound(errors.PhaseClosure, "table entry", "missing")
	}
	return fn(ctx, params), nil
}

func (g *fakeGuest) putString(ptr uint32, s string) (uint32, uint32) {
	copy(g.mem[ptr:], s)
	return ptr, uint32(len(s))
}

func (g *fakeGuest) u32(ptr uint32) uint32 {
	return binary.LittleEndian.Uint32(g.mem[ptr:])
}

func (g *fakeGuest) setU32(ptr, v uint32) {
	binary.LittleEndian.PutUint32(g.mem[ptr:], v)
}

func newAttached(t *testing.T) (*Bridge, *fakeGuest) {
	t.Helper()
	b := New(nil)
	g := newFakeGuest(4096)
	b.Attach(g)
	return b, g
}

func call(t *testing.T, b *Bridge, name string, stack ...uint64) []uint64 {
	t.Helper()
	s, ok := b.Lookup(name)
	if !ok {
		t.Fatalf("shim %q not registered", name)
	}
	if len(stack) < len(s.Results) {
		stack = append(stack, make([]uint64, len(s.Results)-len(stack))...)
	}
	s.Call(context.Background(), stack)
	return stack
}

func expectPanic(t *testing.T, kind errors.Kind, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic of kind %s", kind)
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("panic value %v is not an error", r)
		}
		var e *errors.Error
		if !stderrors.As(err, &e) || e.Kind != kind {
			t.Fatalf("panic = %v, want kind %s", err, kind)
		}
	}()
	fn()
}

type widget struct{ name string }

func TestRegister_Signatures(t *testing.T) {
	i32, f32, f64 := api.ValueTypeI32, api.ValueTypeF32, api.ValueTypeF64
	tests := []struct {
		name    string
		fn      any
		params  []api.ValueType
		results []api.ValueType
		shape   Shape
	}{
		{"void", func() {}, nil, nil, ShapeVoid},
		{"string_arg", func(string) {}, []api.ValueType{i32, i32}, nil, ShapeVoid},
		{"ctx_ignored", func(context.Context, int32) {}, []api.ValueType{i32}, nil, ShapeVoid},
		{"scalars", func(bool, float32, float64) uint32 { return 0 }, []api.ValueType{i32, f32, f64}, []api.ValueType{i32}, ShapeValue},
		{"floats", func(memview.Float32View) {}, []api.ValueType{i32, i32}, nil, ShapeVoid},
		{"fallible", func(*widget) error { return nil }, []api.ValueType{i32, i32}, nil, ShapeFallible},
		{"fallible_handle", func(*widget) (*widget, error) { return nil, nil }, []api.ValueType{i32, i32}, []api.ValueType{i32}, ShapeFallibleValue},
		{"string_result", func(heap.Handle) string { return "" }, []api.ValueType{i32, i32}, nil, ShapeValue},
		{"fallible_string", func(string) (string, error) { return "", nil }, []api.ValueType{i32, i32, i32, i32}, nil, ShapeFallibleValue},
		{"number", func() float64 { return 0 }, nil, []api.ValueType{f64}, ShapeValue},
	}

	b := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Register(tt.name, tt.fn); err != nil {
				t.Fatalf("Register: %v", err)
			}
			s, _ := b.Lookup(tt.name)
			if s.Shape != tt.shape {
				t.Errorf("shape = %s, want %s", s.Shape, tt.shape)
			}
			if !sameTypes(s.Params, tt.params) {
				t.Errorf("params = %v, want %v", s.Params, tt.params)
			}
			if !sameTypes(s.Results, tt.results) {
				t.Errorf("results = %v, want %v", s.Results, tt.results)
			}
		})
	}
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegister_Rejects(t *testing.T) {
	b := New(nil)
	tests := []struct {
		name string
		fn   any
	}{
		{"not_a_func", 42},
		{"variadic", func(...int32) {}},
		{"too_many_results", func() (int32, int32, error) { return 0, 0, nil }},
		{"two_values", func() (int32, int32) { return 0, 0 }},
		{"ctx_not_first", func(int32, context.Context) {}},
		{ObjectDropRef, func() {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Register(tt.name, tt.fn)
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindRegistration}) {
				t.Errorf("Register = %v, want registration error", err)
			}
		})
	}
	if err := b.Register("", func() {}); err == nil {
		t.Error("empty name accepted")
	}
}

func TestImports_IncludePrimitives(t *testing.T) {
	b := New(&Config{Namespace: "env"})
	if b.Namespace() != "env" {
		t.Fatalf("namespace = %q", b.Namespace())
	}
	names := map[string]bool{}
	for _, s := range b.Imports() {
		names[s.Name] = true
	}
	for _, want := range []string{
		ObjectCloneRef, ObjectDropRef, StringNew, StringGet, NumberNew, NumberGet,
		BooleanGet, IsNull, IsUndefined, CbDrop, CbForget, ClosureNew, MemoryExport,
		Throw, Rethrow,
	} {
		if !names[want] {
			t.Errorf("missing primitive %s", want)
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	c := New(&Config{Reserved: 2}).Config()
	if c.Namespace != DefaultNamespace || c.MallocExport != DefaultMallocExport || c.StartExport != DefaultStartExport {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Reserved != heap.DefaultReserved {
		t.Errorf("Reserved = %d, want %d", c.Reserved, heap.DefaultReserved)
	}
	if got := New(&Config{Reserved: 36}).Heap().Reserved(); got != 36 {
		t.Errorf("heap reserved = %d, want 36", got)
	}
}

func TestShim_NotAttached(t *testing.T) {
	b := New(nil)
	s, _ := b.Lookup(NumberNew)
	expectPanic(t, errors.KindNotInitialized, func() {
		s.Call(context.Background(), []uint64{api.EncodeF64(1)})
	})
}

func TestShim_StringArgument(t *testing.T) {
	b, g := newAttached(t)
	var got string
	b.MustRegister("log", func(s string) { got = s })
	b.MustRegister("log_ctx", func(ctx context.Context, s string) {
		if ctx == nil {
			t.Error("nil context")
		}
		got = s
	})

	ptr, n := g.putString(64, "héllo, wörld")
	call(t, b, "log", uint64(ptr), uint64(n))
	if got != "héllo, wörld" {
		t.Errorf("got %q", got)
	}
	call(t, b, "log_ctx", uint64(ptr), 1)
	if got != "h" {
		t.Errorf("got %q", got)
	}

	expectPanic(t, errors.KindContractViolation, func() {
		call(t, b, "log", 4000, 500)
	})
}

func TestShim_StringResult(t *testing.T) {
	b, g := newAttached(t)
	b.MustRegister("greet", func(name string) string { return "hi " + name })

	ptr, n := g.putString(64, "bob")
	const retptr = 128
	call(t, b, "greet", retptr, uint64(ptr), uint64(n))

	sp, sl := g.u32(retptr), g.u32(retptr+4)
	if s := string(g.mem[sp : sp+sl]); s != "hi bob" {
		t.Errorf("result = %q", s)
	}
}

func TestShim_HandleParamTypeChecked(t *testing.T) {
	b, _ := newAttached(t)
	var got *widget
	b.MustRegister("use", func(w *widget) { got = w })

	w := &widget{name: "w"}
	h := b.Heap().Allocate(w)
	call(t, b, "use", uint64(h))
	if got != w {
		t.Fatalf("got %v", got)
	}

	call(t, b, "use", uint64(heap.HandleNull))
	if got != nil {
		t.Errorf("null should arrive as nil, got %v", got)
	}

	s := b.Heap().Allocate("not a widget")
	expectPanic(t, errors.KindContractViolation, func() {
		call(t, b, "use", uint64(s))
	})
	expectPanic(t, errors.KindContractViolation, func() {
		call(t, b, "use", 999)
	})
}

func TestShim_ValueResults(t *testing.T) {
	b, _ := newAttached(t)
	w := &widget{name: "w"}
	b.MustRegister("make", func() *widget { return w })
	b.MustRegister("none", func() *widget { return nil })
	b.MustRegister("flag", func() bool { return true })
	b.MustRegister("neg", func() int32 { return -5 })
	b.MustRegister("half", func(x float32) float32 { return x / 2 })

	out := call(t, b, "make")
	if v, _ := b.Heap().Get(heap.Handle(out[0])); v != w {
		t.Errorf("make returned handle to %v", v)
	}
	if out := call(t, b, "none"); out[0] != uint64(heap.HandleUndefined) {
		t.Errorf("nil result handle = %d", out[0])
	}
	if out := call(t, b, "flag"); out[0] != 1 {
		t.Errorf("flag = %d", out[0])
	}
	if out := call(t, b, "neg"); api.DecodeI32(out[0]) != -5 {
		t.Errorf("neg = %d", api.DecodeI32(out[0]))
	}
	if out := call(t, b, "half", api.EncodeF32(3)); api.DecodeF32(out[0]) != 1.5 {
		t.Errorf("half = %v", api.DecodeF32(out[0]))
	}
}

func TestShim_FloatArrayZeroCopy(t *testing.T) {
	b, _ := newAttached(t)
	var sum float32
	b.MustRegister("sum", func(v memview.Float32View) {
		sum = 0
		for i := uint32(0); i < v.Len(); i++ {
			sum += v.Get(i)
		}
		v.Set(0, -1)
	})

	view := b.Views().Float32()
	for i := uint32(0); i < 4; i++ {
		view.Set(64+i, float32(i+1))
	}
	call(t, b, "sum", 256, 4)
	if sum != 10 {
		t.Errorf("sum = %v", sum)
	}
	if got := b.Views().Float32().Get(64); got != -1 {
		t.Errorf("write through view not visible in guest memory: %v", got)
	}

	expectPanic(t, errors.KindContractViolation, func() {
		call(t, b, "sum", 257, 4)
	})
}

func TestException_SuccessLeavesSlotUntouched(t *testing.T) {
	b, g := newAttached(t)
	b.MustRegister("ok", func() error { return nil })
	b.MustRegister("ok_value", func() (int32, error) { return 7, nil })

	const exn = 512
	g.setU32(exn, 0xAAAAAAAA)
	g.setU32(exn+4, 0xBBBBBBBB)

	call(t, b, "ok", exn)
	out := call(t, b, "ok_value", exn)
	if out[0] != 7 {
		t.Errorf("ok_value = %d", out[0])
	}
	if g.u32(exn) != 0xAAAAAAAA || g.u32(exn+4) != 0xBBBBBBBB {
		t.Errorf("slot modified on success: %#x %#x", g.u32(exn), g.u32(exn+4))
	}
}

func TestException_ErrorWritesSlot(t *testing.T) {
	b, g := newAttached(t)
	boom := stderrors.New("boom")
	b.MustRegister("fail", func() (int32, error) { return 9, boom })

	const exn = 512
	out := call(t, b, "fail", exn)
	if out[0] != 0 {
		t.Errorf("failed call returned %d", out[0])
	}
	if g.u32(exn) != StatusThrown {
		t.Fatalf("status = %d", g.u32(exn))
	}

	live := b.Heap().Len()
	exc, err := b.TakeException(exn)
	if err != nil {
		t.Fatal(err)
	}
	if !exc.Thrown || exc.Err() != boom {
		t.Errorf("exception = %+v", exc)
	}
	if b.Heap().Len() != live-1 {
		t.Errorf("error handle not dropped")
	}
	if g.u32(exn) != StatusOK {
		t.Errorf("status not reset")
	}
}

func TestException_ThrownValue(t *testing.T) {
	b, _ := newAttached(t)
	b.MustRegister("throw_value", func() error { return &ThrownError{Value: 42} })

	const exn = 512
	call(t, b, "throw_value", exn)
	exc, err := b.ReadException(exn)
	if err != nil {
		t.Fatal(err)
	}
	if exc.Value != 42 {
		t.Errorf("thrown value = %v", exc.Value)
	}
	var te *ThrownError
	if !stderrors.As(exc.Err(), &te) || te.Value != 42 {
		t.Errorf("Err() = %v", exc.Err())
	}
}

func TestException_PanicBecomesException(t *testing.T) {
	b, _ := newAttached(t)
	b.MustRegister("explode", func() error { panic("kaboom") })
	b.MustRegister("violate", func(h heap.Handle) error {
		b.Heap().MustGet(h)
		return nil
	})
	b.MustRegister("explode_void", func() { panic("kaboom") })

	const exn = 512
	call(t, b, "explode", exn)
	exc, err := b.ReadException(exn)
	if err != nil || !exc.Thrown {
		t.Fatalf("exception = %+v, %v", exc, err)
	}

	expectPanic(t, errors.KindContractViolation, func() {
		call(t, b, "violate", 999, exn+8)
	})

	defer func() {
		if recover() == nil {
			t.Error("infallible shim swallowed a panic")
		}
	}()
	call(t, b, "explode_void")
}

func TestException_RuntimeFaultBecomesException(t *testing.T) {
	b, _ := newAttached(t)
	b.MustRegister("nil_map", func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	b.MustRegister("out_of_range", func(i int32) (int32, error) {
		xs := []int32{1}
		return xs[i], nil
	})

	tests := []struct {
		name   string
		args   []uint64
		result bool
	}{
		{"nil_map", []uint64{512}, false},
		{"out_of_range", []uint64{5, 520}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := call(t, b, tt.name, tt.args...)
			exn := uint32(tt.args[len(tt.args)-1])
			exc, err := b.TakeException(exn)
			if err != nil {
				t.Fatal(err)
			}
			if !exc.Thrown {
				t.Fatal("runtime fault not written to the exception slot")
			}
			var rerr runtime.Error
			if !stderrors.As(exc.Err(), &rerr) {
				t.Errorf("exception = %v, want a runtime.Error", exc.Err())
			}
			if tt.result && out[0] != 0 {
				t.Errorf("result = %d, want 0 on failure", out[0])
			}
		})
	}
}

func TestPrimitives_Strings(t *testing.T) {
	b, g := newAttached(t)

	ptr, n := g.putString(64, "ünïcode")
	h := call(t, b, StringNew, uint64(ptr), uint64(n))[0]
	if v, _ := b.Heap().Get(heap.Handle(h)); v != "ünïcode" {
		t.Fatalf("string_new stored %v", v)
	}

	const retptr = 128
	call(t, b, StringGet, h, retptr)
	sp, sl := g.u32(retptr), g.u32(retptr+4)
	if s := string(g.mem[sp : sp+sl]); s != "ünïcode" {
		t.Errorf("string_get = %q", s)
	}

	num := b.Heap().Allocate(1.5)
	call(t, b, StringGet, uint64(num), retptr)
	if g.u32(retptr) != 0 || g.u32(retptr+4) != 0 {
		t.Errorf("string_get of a number wrote (%d, %d)", g.u32(retptr), g.u32(retptr+4))
	}
}

func TestPrimitives_Numbers(t *testing.T) {
	b, g := newAttached(t)

	h := call(t, b, NumberNew, api.EncodeF64(2.25))[0]
	const flag = 200
	g.mem[flag] = 0xAB
	out := call(t, b, NumberGet, h, flag)
	// Success leaves the invalid flag alone.
	if api.DecodeF64(out[0]) != 2.25 || g.mem[flag] != 0xAB {
		t.Errorf("number_get = %v flag %d", api.DecodeF64(out[0]), g.mem[flag])
	}

	s := b.Heap().Allocate("x")
	out = call(t, b, NumberGet, uint64(s), flag)
	if api.DecodeF64(out[0]) != 0 || g.mem[flag] != 1 {
		t.Errorf("number_get of string = %v flag %d", api.DecodeF64(out[0]), g.mem[flag])
	}
}

func TestPrimitives_Predicates(t *testing.T) {
	b, _ := newAttached(t)
	other := uint64(b.Heap().Allocate("x"))

	tests := []struct {
		name   string
		handle uint64
		want   uint64
	}{
		{BooleanGet, uint64(heap.HandleTrue), 1},
		{BooleanGet, uint64(heap.HandleFalse), 0},
		{BooleanGet, other, 2},
		{IsNull, uint64(heap.HandleNull), 1},
		{IsNull, uint64(heap.HandleUndefined), 0},
		{IsUndefined, uint64(heap.HandleUndefined), 1},
		{IsUndefined, other, 0},
	}
	for _, tt := range tests {
		if got := call(t, b, tt.name, tt.handle)[0]; got != tt.want {
			t.Errorf("%s(%d) = %d, want %d", tt.name, tt.handle, got, tt.want)
		}
	}
}

func TestPrimitives_CloneAndDrop(t *testing.T) {
	b, _ := newAttached(t)
	w := &widget{}
	h := uint64(b.Heap().Allocate(w))

	c := call(t, b, ObjectCloneRef, h)[0]
	if c == h {
		t.Fatal("clone returned the same handle")
	}
	call(t, b, ObjectDropRef, h)
	if v, ok := b.Heap().Get(heap.Handle(c)); !ok || v != w {
		t.Errorf("clone does not survive dropping the original")
	}
	call(t, b, ObjectDropRef, c)
	if b.Heap().Len() != 0 {
		t.Errorf("heap Len = %d", b.Heap().Len())
	}

	if got := call(t, b, ObjectCloneRef, uint64(heap.HandleNull))[0]; got != uint64(heap.HandleNull) {
		t.Errorf("clone of null = %d", got)
	}
	call(t, b, ObjectDropRef, uint64(heap.HandleTrue))
	if v, _ := b.Heap().Get(heap.HandleTrue); v != true {
		t.Error("reserved slot dropped")
	}
}

func TestPrimitives_ThrowAndRethrow(t *testing.T) {
	b, g := newAttached(t)

	ptr, n := g.putString(64, "guest panicked")
	defer func() {
		r := recover()
		err, _ := r.(error)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseGuest, Kind: errors.KindGuestThrow}) {
			t.Fatalf("throw panic = %v", r)
		}

		h := uint64(b.Heap().Allocate("payload"))
		defer func() {
			r := recover()
			te, ok := r.(*ThrownError)
			if !ok || te.Value != "payload" {
				t.Fatalf("rethrow panic = %v", r)
			}
			if b.Heap().Len() != 0 {
				t.Errorf("rethrow did not take the handle")
			}
		}()
		call(t, b, Rethrow, h)
	}()
	call(t, b, Throw, uint64(ptr), uint64(n))
}

func TestPrimitives_ClosureLifecycle(t *testing.T) {
	b, g := newAttached(t)
	const invoke, destroy = 5, 6

	var events []any
	g.table[invoke] = func(_ context.Context, p []uint64) []uint64 {
		v, _ := b.Heap().Take(heap.Handle(p[2]))
		events = append(events, v)
		return nil
	}
	g.table[destroy] = func(context.Context, []uint64) []uint64 { return nil }

	h := call(t, b, ClosureNew, 100, 0, invoke, destroy, 1)[0]
	v, _ := b.Heap().Get(heap.Handle(h))
	fn, ok := v.(*closure.Func)
	if !ok {
		t.Fatalf("closure_new stored %T", v)
	}
	if err := fn.Retain(); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Call(context.Background(), fn, "click"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(events) != 1 || events[0] != "click" {
		t.Errorf("events = %v", events)
	}

	if got := call(t, b, CbDrop, h)[0]; got != 0 {
		t.Errorf("cb_drop with a host reference returned %d", got)
	}
	if destroyed, _ := fn.Release(context.Background()); !destroyed {
		t.Error("host release should destroy")
	}
	if g.calls[destroy] != 1 {
		t.Errorf("destroy calls = %d", g.calls[destroy])
	}

	h = call(t, b, ClosureNew, 101, 0, invoke, destroy, 1)[0]
	if got := call(t, b, CbDrop, h)[0]; got != 1 {
		t.Errorf("cb_drop returned %d, want 1", got)
	}
	if g.calls[destroy] != 2 {
		t.Errorf("destroy calls = %d", g.calls[destroy])
	}

	h = call(t, b, ClosureNew, 102, 0, invoke, destroy, 1)[0]
	call(t, b, CbForget, h)
	if g.calls[destroy] != 2 {
		t.Error("forget ran the destructor")
	}
	if b.Closures().Len() != 1 {
		t.Errorf("forgotten closure not live: %d", b.Closures().Len())
	}
	b.Close()
	if g.calls[destroy] != 2 {
		t.Error("Close ran a destructor")
	}
}

func TestRegisterClosureWrapper(t *testing.T) {
	b, g := newAttached(t)
	g.table[7] = func(_ context.Context, p []uint64) []uint64 {
		return []uint64{uint64(b.Heap().Allocate(int(p[0])))}
	}
	if err := b.RegisterClosureWrapper("__wbindgen_closure_wrapper7", 7, 8, closure.Signature{Results: 1}); err != nil {
		t.Fatal(err)
	}
	if err := b.RegisterClosureWrapper("bad", 7, 8, closure.Signature{Results: 2}); err == nil {
		t.Error("two-result closure accepted")
	}

	h := call(t, b, "__wbindgen_closure_wrapper7", 33, 0, 0)[0]
	fn := b.Heap().MustGet(heap.Handle(h)).(*closure.Func)
	out, err := fn.Call(context.Background())
	if err != nil || out != 33 {
		t.Errorf("Call = (%v, %v), want (33, nil)", out, err)
	}
}

func TestWrap(t *testing.T) {
	b := New(nil)
	var nilWidget *widget
	tests := []struct {
		v    any
		want heap.Handle
	}{
		{nil, heap.HandleUndefined},
		{heap.Undefined, heap.HandleUndefined},
		{heap.Null, heap.HandleNull},
		{true, heap.HandleTrue},
		{false, heap.HandleFalse},
		{nilWidget, heap.HandleUndefined},
	}
	for _, tt := range tests {
		if got := b.Wrap(tt.v); got != tt.want {
			t.Errorf("Wrap(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}
	if h := b.Wrap("x"); h < heap.Handle(heap.DefaultReserved) {
		t.Errorf("Wrap(string) = %d", h)
	}
}
