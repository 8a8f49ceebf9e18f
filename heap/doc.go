// Package heap provides the object handle table that lets guest code name
// host values by small integers.
//
// The guest cannot store host references, so every host value it needs is
// parked in a slot of the table and the guest holds the slot index. Slots
// are recycled through a free list threaded through the table itself: a
// free slot stores the index of the next free slot in place of a value.
//
// # Reserved Handles
//
// The first slots hold constants and are never reclaimed:
//
//	0  undefined
//	1  null
//	2  true
//	3  false
//
// A Config may raise the reserved threshold; the extra slots hold
// undefined and are equally permanent.
//
// # Usage
//
//	t := heap.New(nil)
//
//	h := t.Allocate(canvas)
//	v, ok := t.Get(h)
//	t.Drop(h)
//
// # Observers
//
// Register an Observer to receive allocation and drop events:
//
//	t.Subscribe(myObserver)
//
// The table is not safe for concurrent use. The bridge runs guest and host
// code on one call stack and needs no locking.
package heap
