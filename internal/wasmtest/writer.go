package wasmtest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// writer accumulates WebAssembly binary encoding.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

func (w *writer) size() int { return w.buf.Len() }

func (w *writer) put(b ...byte) { w.buf.Write(b) }

func (w *writer) raw(p []byte) { w.buf.Write(p) }

// u32 writes unsigned LEB128.
func (w *writer) u32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// s64 writes signed LEB128.
func (w *writer) s64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			w.buf.WriteByte(b)
			return
		}
		w.buf.WriteByte(b | 0x80)
	}
}

func (w *writer) name(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) f32(f float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(f))
	w.buf.Write(b[:])
}

func (w *writer) f64(f float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	w.buf.Write(b[:])
}

func (w *writer) section(id byte, body *writer) {
	w.put(id)
	w.u32(uint32(body.size()))
	w.raw(body.bytes())
}
