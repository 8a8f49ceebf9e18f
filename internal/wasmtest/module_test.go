package wasmtest

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

func TestWriter_LEB128(t *testing.T) {
	tests := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{63, []byte{0x3F}},
		{64, []byte{0xC0, 0x00}},
		{-1, []byte{0x7F}},
		{-8, []byte{0x78}},
		{1024, []byte{0x80, 0x08}},
	}
	for _, tt := range tests {
		var w writer
		w.s64(tt.v)
		if !bytes.Equal(w.bytes(), tt.want) {
			t.Errorf("s64(%d) = % x, want % x", tt.v, w.bytes(), tt.want)
		}
	}

	var w writer
	w.u32(624485)
	if !bytes.Equal(w.bytes(), []byte{0xE5, 0x8E, 0x26}) {
		t.Errorf("u32(624485) = % x", w.bytes())
	}
}

func TestModule_RunsUnderWazero(t *testing.T) {
	ctx := context.Background()

	m := NewModule().Memory(1)
	m.Data(16, []byte("hi"))
	add := m.Func(Sig(Params(I32, I32), I32), nil, func(c *Code) {
		c.LocalGet(0).LocalGet(1).I32Add()
	})
	m.Export("add", add)
	m.Table(add)
	m.Export("call0", m.Func(Sig(Params(I32, I32), I32), nil, func(c *Code) {
		c.LocalGet(0).LocalGet(1).I32Const(0).CallIndirect(m.Type(Sig(Params(I32, I32), I32)))
	}))
	m.BumpAllocator("malloc", 65530)

	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, m.Bytes())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	out, err := mod.ExportedFunction("add").Call(ctx, 2, 3)
	if err != nil || out[0] != 5 {
		t.Fatalf("add = %v, %v", out, err)
	}
	out, err = mod.ExportedFunction("call0").Call(ctx, 40, 2)
	if err != nil || out[0] != 42 {
		t.Fatalf("call0 = %v, %v", out, err)
	}

	if got, _ := mod.Memory().Read(16, 2); string(got) != "hi" {
		t.Errorf("data segment = %q", got)
	}

	malloc := mod.ExportedFunction("malloc")
	out, err = malloc.Call(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 65536 {
		t.Errorf("first block at %d, want 65536 (aligned)", out[0])
	}
	if pages, _ := mod.Memory().Grow(0); pages != 2 {
		t.Errorf("memory pages = %d, want 2 after growth", pages)
	}
}
