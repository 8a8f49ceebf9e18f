package wasmtest

// Code builds a function body. Methods append one instruction and return
// the receiver so bodies read top to bottom.
type Code struct {
	w writer
}

func (c *Code) op(b ...byte) *Code {
	c.w.put(b...)
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { c.w.put(0x20); c.w.u32(i); return c }
func (c *Code) LocalSet(i uint32) *Code  { c.w.put(0x21); c.w.u32(i); return c }
func (c *Code) LocalTee(i uint32) *Code  { c.w.put(0x22); c.w.u32(i); return c }
func (c *Code) GlobalGet(i uint32) *Code { c.w.put(0x23); c.w.u32(i); return c }
func (c *Code) GlobalSet(i uint32) *Code { c.w.put(0x24); c.w.u32(i); return c }

func (c *Code) I32Const(v int32) *Code   { c.w.put(0x41); c.w.s64(int64(v)); return c }
func (c *Code) I64Const(v int64) *Code   { c.w.put(0x42); c.w.s64(v); return c }
func (c *Code) F32Const(v float32) *Code { c.w.put(0x43); c.w.f32(v); return c }
func (c *Code) F64Const(v float64) *Code { c.w.put(0x44); c.w.f64(v); return c }

func (c *Code) Call(fn uint32) *Code { c.w.put(0x10); c.w.u32(fn); return c }

// CallIndirect calls table 0 with the function type index typ.
func (c *Code) CallIndirect(typ uint32) *Code {
	c.w.put(0x11)
	c.w.u32(typ)
	c.w.put(0x00)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(0x00) }
func (c *Code) Drop() *Code        { return c.op(0x1A) }
func (c *Code) Return() *Code      { return c.op(0x0F) }

// If opens a block with no result; close it with End.
func (c *Code) If() *Code   { return c.op(0x04, 0x40) }
func (c *Code) Else() *Code { return c.op(0x05) }
func (c *Code) End() *Code  { return c.op(0x0B) }

func (c *Code) I32Eqz() *Code  { return c.op(0x45) }
func (c *Code) I32Eq() *Code   { return c.op(0x46) }
func (c *Code) I32Ne() *Code   { return c.op(0x47) }
func (c *Code) I32GtS() *Code  { return c.op(0x4A) }
func (c *Code) I32Add() *Code  { return c.op(0x6A) }
func (c *Code) I32Sub() *Code  { return c.op(0x6B) }
func (c *Code) I32Mul() *Code  { return c.op(0x6C) }
func (c *Code) I32And() *Code  { return c.op(0x71) }
func (c *Code) I32ShrU() *Code { return c.op(0x76) }

// Memory access with natural alignment.
func (c *Code) I32Load(offset uint32) *Code   { return c.mem(0x28, 2, offset) }
func (c *Code) F32Load(offset uint32) *Code   { return c.mem(0x2A, 2, offset) }
func (c *Code) F64Load(offset uint32) *Code   { return c.mem(0x2B, 3, offset) }
func (c *Code) I32Load8U(offset uint32) *Code { return c.mem(0x2D, 0, offset) }
func (c *Code) I32Store(offset uint32) *Code  { return c.mem(0x36, 2, offset) }
func (c *Code) F32Store(offset uint32) *Code  { return c.mem(0x38, 2, offset) }
func (c *Code) F64Store(offset uint32) *Code  { return c.mem(0x39, 3, offset) }
func (c *Code) I32Store8(offset uint32) *Code { return c.mem(0x3A, 0, offset) }

func (c *Code) MemorySize() *Code { return c.op(0x3F, 0x00) }
func (c *Code) MemoryGrow() *Code { return c.op(0x40, 0x00) }

func (c *Code) mem(op byte, align, offset uint32) *Code {
	c.w.put(op)
	c.w.u32(align)
	c.w.u32(offset)
	return c
}
