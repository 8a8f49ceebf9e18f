package wasmtest

// BumpAllocator defines and exports name as a (size) -> ptr allocator that
// hands out 8-byte aligned blocks from start upward, growing memory when a
// block runs past the end. Nothing is ever freed.
func (m *Module) BumpAllocator(name string, start int32) uint32 {
	top := m.Global(true, start)
	fn := m.Func(Sig(Params(I32), I32), []ValType{I32}, func(c *Code) {
		c.GlobalGet(top).I32Const(7).I32Add().I32Const(-8).I32And().GlobalSet(top)
		c.GlobalGet(top)
		c.GlobalGet(top).LocalGet(0).I32Add().GlobalSet(top)

		// pages needed beyond the current size
		c.GlobalGet(top).I32Const(65535).I32Add().I32Const(16).I32ShrU()
		c.MemorySize().I32Sub().LocalTee(1)
		c.I32Const(0).I32GtS().If()
		c.LocalGet(1).MemoryGrow().Drop()
		c.End()
	})
	m.Export(name, fn)
	return fn
}
