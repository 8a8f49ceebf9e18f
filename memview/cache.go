// Package memview caches typed views over guest linear memory.
//
// Growing guest memory may replace the backing buffer. Every accessor
// compares the cached buffer with the current one and rebuilds the views
// when they differ, so a view obtained from the Cache is valid until the
// next call that can grow memory (an allocator call or any re-entrant call
// into the guest). Each view records the generation it was built for;
// Cache.Stale reports whether it may still be used.
package memview

// Source exposes the guest's current backing buffer.
type Source interface {
	Buffer() []byte
}

// Cache holds one lazily built view per element type.
type Cache struct {
	src   Source
	buf   []byte
	gen   uint64
	bound bool
	u8    *Uint8View
	u32   *Uint32View
	f32   *Float32View
}

// NewCache creates a cache reading from src.
func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

// Generation increments each time the backing buffer is found replaced.
func (c *Cache) Generation() uint64 {
	c.refresh()
	return c.gen
}

// Stale reports whether a view was built for a previous buffer.
func (c *Cache) Stale(v interface{ Generation() uint64 }) bool {
	c.refresh()
	return v.Generation() != c.gen
}

// Size returns the current buffer length in bytes.
func (c *Cache) Size() uint32 {
	c.refresh()
	return uint32(len(c.buf))
}

// Uint8 returns a byte view over the current buffer.
func (c *Cache) Uint8() Uint8View {
	c.refresh()
	if c.u8 == nil {
		c.u8 = &Uint8View{buf: c.buf, gen: c.gen}
	}
	return *c.u8
}

// Uint32 returns a 32-bit integer view over the current buffer.
func (c *Cache) Uint32() Uint32View {
	c.refresh()
	if c.u32 == nil {
		c.u32 = &Uint32View{buf: c.buf[:len(c.buf)&^3], gen: c.gen}
	}
	return *c.u32
}

// Float32 returns a 32-bit float view over the current buffer.
func (c *Cache) Float32() Float32View {
	c.refresh()
	if c.f32 == nil {
		c.f32 = &Float32View{buf: c.buf[:len(c.buf)&^3], gen: c.gen}
	}
	return *c.f32
}

// Invalidate forces the next access to rebuild every view.
func (c *Cache) Invalidate() {
	c.bound = false
}

func (c *Cache) refresh() {
	cur := c.src.Buffer()
	if c.bound && sameBuffer(cur, c.buf) {
		return
	}
	c.buf = cur
	c.bound = true
	c.gen++
	c.u8 = nil
	c.u32 = nil
	c.f32 = nil
}

func sameBuffer(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}
