package memview

import (
	"encoding/binary"
	"math"
)

// Uint8View is a byte window over guest memory.
type Uint8View struct {
	buf []byte
	gen uint64
}

// Len returns the number of bytes.
func (v Uint8View) Len() uint32 { return uint32(len(v.buf)) }

// Generation returns the buffer generation the view was built for.
func (v Uint8View) Generation() uint64 { return v.gen }

// Get returns the byte at i.
func (v Uint8View) Get(i uint32) uint8 { return v.buf[i] }

// Set stores b at i.
func (v Uint8View) Set(i uint32, b uint8) { v.buf[i] = b }

// Slice returns the bytes in [start, end) without copying.
func (v Uint8View) Slice(start, end uint32) []byte { return v.buf[start:end:end] }

// InBounds reports whether [ptr, ptr+n) lies inside the view.
func (v Uint8View) InBounds(ptr, n uint32) bool {
	return uint64(ptr)+uint64(n) <= uint64(len(v.buf))
}

// Uint32View is a little-endian 32-bit integer window over guest memory.
// Indexes count elements, not bytes.
type Uint32View struct {
	buf []byte
	gen uint64
}

// Len returns the number of elements.
func (v Uint32View) Len() uint32 { return uint32(len(v.buf) / 4) }

// Generation returns the buffer generation the view was built for.
func (v Uint32View) Generation() uint64 { return v.gen }

// Get returns element i.
func (v Uint32View) Get(i uint32) uint32 {
	return binary.LittleEndian.Uint32(v.buf[i*4 : i*4+4])
}

// Set stores x as element i.
func (v Uint32View) Set(i uint32, x uint32) {
	binary.LittleEndian.PutUint32(v.buf[i*4:i*4+4], x)
}

// Float32View is a little-endian 32-bit float window over guest memory.
// Indexes count elements, not bytes.
type Float32View struct {
	buf []byte
	gen uint64
}

// Len returns the number of elements.
func (v Float32View) Len() uint32 { return uint32(len(v.buf) / 4) }

// Generation returns the buffer generation the view was built for.
func (v Float32View) Generation() uint64 { return v.gen }

// Get returns element i.
func (v Float32View) Get(i uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v.buf[i*4 : i*4+4]))
}

// Set stores f as element i.
func (v Float32View) Set(i uint32, f float32) {
	binary.LittleEndian.PutUint32(v.buf[i*4:i*4+4], math.Float32bits(f))
}

// Sub returns the elements in [start, end) as a view sharing the same
// memory.
func (v Float32View) Sub(start, end uint32) Float32View {
	return Float32View{buf: v.buf[start*4 : end*4 : end*4], gen: v.gen}
}

// Floats copies the elements out into a Go slice.
func (v Float32View) Floats() []float32 {
	out := make([]float32, v.Len())
	for i := range out {
		out[i] = v.Get(uint32(i))
	}
	return out
}
