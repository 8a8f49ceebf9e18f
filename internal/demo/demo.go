// Package demo assembles a small guest that drives the window API: it
// listens for keyboard events, logs the keys it sees and keeps a frame
// callback scheduled.
package demo

import (
	"math"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/hostenv"
	"github.com/wippyai/wasm-bridge/internal/wasmtest"
)

// Started is the first line the guest logs.
const Started = "demo started"

// Exports beyond the bridge entry point.
const (
	ExportFrames  = "frames"
	ExportElapsed = "elapsed"
)

// Floats is the array logged through console_log_f32 on start.
var Floats = []float32{1, 2.5, -4}

// Fixed guest memory layout.
const (
	retArea  = 16
	exnArea  = 48
	timeSlot = 56
	keydown  = 64
	keyup    = 72
	started  = 96
	floats   = 128
	heapBase = 4096
)

// Guest returns the demo module bytes.
func Guest() []byte {
	m := wasmtest.NewModule()
	ns := bridge.DefaultNamespace
	i32 := wasmtest.I32
	p := wasmtest.Params

	window := m.Import(ns, hostenv.ImportWindow, wasmtest.Sig(nil, i32))
	document := m.Import(ns, hostenv.ImportWindowDocument, wasmtest.Sig(p(i32), i32))
	raf := m.Import(ns, hostenv.ImportRequestFrame, wasmtest.Sig(p(i32, i32, i32), i32))
	listen := m.Import(ns, hostenv.ImportAddEventListener, wasmtest.Sig(p(i32, i32, i32, i32, i32)))
	eventKey := m.Import(ns, hostenv.ImportKeyboardEventKey, wasmtest.Sig(p(i32, i32)))
	consoleLog := m.Import(ns, hostenv.ImportConsoleLog, wasmtest.Sig(p(i32, i32)))
	consoleF32 := m.Import(ns, hostenv.ImportConsoleLogF32, wasmtest.Sig(p(i32, i32)))
	now := m.Import(ns, hostenv.ImportPerformanceNow, wasmtest.Sig(p(i32), wasmtest.F64))
	closureNew := m.Import(ns, bridge.ClosureNew, wasmtest.Sig(p(i32, i32, i32, i32, i32), i32))
	dropRef := m.Import(ns, bridge.ObjectDropRef, wasmtest.Sig(p(i32)))
	forget := m.Import(ns, bridge.CbForget, wasmtest.Sig(p(i32)))

	m.Memory(1)
	m.Data(keydown, []byte("keydown"))
	m.Data(keyup, []byte("keyup"))
	m.Data(started, []byte(Started))
	m.Data(floats, floatBytes(Floats))
	m.BumpAllocator(bridge.DefaultMallocExport, heapBase)

	gWin := m.Global(true, 0)
	gFrame := m.Global(true, 0)
	gFrames := m.Global(true, 0)

	// onKey(a, env, event): log the key and drop the event handle.
	onKey := m.Func(wasmtest.Sig(p(i32, i32, i32)), nil, func(c *wasmtest.Code) {
		c.I32Const(retArea).LocalGet(2).Call(eventKey)
		c.I32Const(retArea).I32Load(0).I32Const(retArea).I32Load(4).Call(consoleLog)
		c.LocalGet(2).Call(dropRef)
	})
	// onFrame(a, env, ts): count, record the time and schedule again.
	onFrame := m.Func(wasmtest.Sig(p(i32, i32, i32)), nil, func(c *wasmtest.Code) {
		c.LocalGet(2).Call(dropRef)
		c.GlobalGet(gFrames).I32Const(1).I32Add().GlobalSet(gFrames)
		c.I32Const(timeSlot).GlobalGet(gWin).Call(now).F64Store(0)
		c.GlobalGet(gWin).GlobalGet(gFrame).I32Const(exnArea).Call(raf).Drop()
	})
	noop := m.Func(wasmtest.Sig(p(i32, i32)), nil, func(*wasmtest.Code) {})
	m.Table(onKey, onFrame, noop)
	const keyIdx, frameIdx, destroyIdx = 0, 1, 2

	addListener := func(c *wasmtest.Code, tag, typ int32, typLen int) {
		c.I32Const(tag).I32Const(0).I32Const(keyIdx).I32Const(destroyIdx).I32Const(1).Call(closureNew).LocalSet(1)
		c.LocalGet(0).I32Const(typ).I32Const(int32(typLen)).LocalGet(1).I32Const(exnArea).Call(listen)
		c.LocalGet(1).Call(forget)
	}

	m.Export(bridge.DefaultStartExport, m.Func(wasmtest.Sig(nil), []wasmtest.ValType{i32, i32}, func(c *wasmtest.Code) {
		c.Call(window).GlobalSet(gWin)
		c.GlobalGet(gWin).Call(document).LocalSet(0)
		addListener(c, 1, keydown, len("keydown"))
		addListener(c, 2, keyup, len("keyup"))
		c.I32Const(0).I32Const(0).I32Const(frameIdx).I32Const(destroyIdx).I32Const(1).Call(closureNew).GlobalSet(gFrame)
		c.GlobalGet(gWin).GlobalGet(gFrame).I32Const(exnArea).Call(raf).Drop()
		c.I32Const(started).I32Const(int32(len(Started))).Call(consoleLog)
		c.I32Const(floats).I32Const(int32(len(Floats))).Call(consoleF32)
		c.LocalGet(0).Call(dropRef)
	}))
	m.Export(ExportFrames, m.Func(wasmtest.Sig(nil, i32), nil, func(c *wasmtest.Code) {
		c.GlobalGet(gFrames)
	}))
	m.Export(ExportElapsed, m.Func(wasmtest.Sig(nil, wasmtest.F64), nil, func(c *wasmtest.Code) {
		c.I32Const(timeSlot).F64Load(0)
	}))

	return m.Bytes()
}

func floatBytes(fs []float32) []byte {
	out := make([]byte, 0, len(fs)*4)
	for _, f := range fs {
		u := math.Float32bits(f)
		out = append(out, byte(u), byte(u>>8), byte(u>>16), byte(u>>24))
	}
	return out
}
