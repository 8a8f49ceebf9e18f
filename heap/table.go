package heap

import (
	"github.com/wippyai/wasm-bridge/errors"
)

// link occupies a free slot and names the next free slot.
type link uint32

// Table is a slab of host values addressed by Handle.
type Table struct {
	slots     []any
	observers []Observer
	next      uint32
	reserved  uint32
	live      int
	free      int
}

// New creates a table holding only the reserved constants.
func New(cfg *Config) *Table {
	reserved := uint32(DefaultReserved)
	if cfg != nil && cfg.Reserved > reserved {
		reserved = cfg.Reserved
	}

	slots := make([]any, reserved, reserved+64)
	for i := range slots {
		slots[i] = Undefined
	}
	slots[HandleNull] = Null
	slots[HandleTrue] = true
	slots[HandleFalse] = false

	return &Table{
		slots:    slots,
		next:     reserved,
		reserved: reserved,
	}
}

// Allocate stores v and returns its handle.
func (t *Table) Allocate(v any) Handle {
	if t.next == uint32(len(t.slots)) {
		t.slots = append(t.slots, link(len(t.slots)+1))
	} else {
		t.free--
	}

	idx := t.next
	t.next = uint32(t.slots[idx].(link))
	t.slots[idx] = v
	t.live++

	t.notify(Event{Type: EventAllocated, Handle: Handle(idx), Value: v})
	return Handle(idx)
}

// Get returns the value at h. It reports false for a free or unknown slot;
// callers holding such a handle have violated the bridge contract.
func (t *Table) Get(h Handle) (any, bool) {
	if uint32(h) >= uint32(len(t.slots)) {
		return nil, false
	}
	v := t.slots[h]
	if _, free := v.(link); free {
		return nil, false
	}
	return v, true
}

// MustGet returns the value at h or panics with a contract violation.
func (t *Table) MustGet(h Handle) any {
	v, ok := t.Get(h)
	if !ok {
		panic(errors.ContractViolation(errors.PhaseHeap, "", errors.StaleHandle(errors.PhaseHeap, uint32(h))))
	}
	return v
}

// Drop releases h. Reserved handles are never released. Dropping a free or
// unknown slot is refused and reported as false.
func (t *Table) Drop(h Handle) bool {
	if uint32(h) < t.reserved || uint32(h) >= uint32(len(t.slots)) {
		return false
	}
	v := t.slots[h]
	if _, free := v.(link); free {
		return false
	}

	t.slots[h] = link(t.next)
	t.next = uint32(h)
	t.live--
	t.free++

	t.notify(Event{Type: EventDropped, Handle: h, Value: v})
	return true
}

// Take returns the value at h and releases the handle.
func (t *Table) Take(h Handle) (any, bool) {
	v, ok := t.Get(h)
	if !ok {
		return nil, false
	}
	t.Drop(h)
	return v, true
}

// Clone returns a second handle to the value at h. The value is shared,
// not copied. Reserved handles are returned unchanged.
func (t *Table) Clone(h Handle) Handle {
	if uint32(h) < t.reserved {
		return h
	}
	return t.Allocate(t.MustGet(h))
}

// Reserved reports the permanent-slot threshold.
func (t *Table) Reserved() uint32 {
	return t.reserved
}

// Len returns the number of live non-reserved values.
func (t *Table) Len() int {
	return t.live
}

// Cap returns the number of slots, reserved ones included.
func (t *Table) Cap() int {
	return len(t.slots)
}

// FreeCount returns the number of reclaimed slots waiting for reuse.
func (t *Table) FreeCount() int {
	return t.free
}

// Each iterates over live non-reserved values in slot order.
func (t *Table) Each(fn func(Handle, any) bool) {
	for i := t.reserved; i < uint32(len(t.slots)); i++ {
		v := t.slots[i]
		if _, free := v.(link); free {
			continue
		}
		if !fn(Handle(i), v) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	for _, o := range t.observers {
		o.OnHeapEvent(e)
	}
}
