package closure

import (
	"context"
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
)

// State is the lifecycle state of a closure record.
type State uint8

const (
	StateArmed State = iota
	StateExecuting
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateExecuting:
		return "executing"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Signature describes the guest trampoline beyond its (a, b) prefix:
// Params host arguments passed as handles and at most one handle result.
type Signature struct {
	Params  uint32
	Results uint32
}

// Table calls entries of the guest function table. All parameters and
// results are i32.
type Table interface {
	CallIndirect(ctx context.Context, index uint32, results int, params ...uint64) ([]uint64, error)
}

type record struct {
	sig     Signature
	invoke  uint32
	destroy uint32
	ctx     uint32
	env     uint32
	refs    uint32
	depth   uint32
	gen     uint32
	state   State
	used    bool
}

// Stats summarizes a registry.
type Stats struct {
	Live      int
	Executing int
	Destroyed uint64
}

// Registry owns the records of every closure created for one guest.
type Registry struct {
	table     Table
	heap      *heap.Table
	records   []record
	free      []uint32
	live      int
	destroyed uint64
}

// NewRegistry creates a registry that invokes guest code through table and
// passes callback arguments as handles allocated in h.
func NewRegistry(table Table, h *heap.Table) *Registry {
	return &Registry{table: table, heap: h}
}

// New creates an armed closure holding one reference.
func (r *Registry) New(invoke, destroy, ctx, env uint32, sig Signature) *Func {
	rec := record{
		sig:     sig,
		invoke:  invoke,
		destroy: destroy,
		ctx:     ctx,
		env:     env,
		refs:    1,
		state:   StateArmed,
		used:    true,
	}

	var slot uint32
	if n := len(r.free); n > 0 {
		slot = r.free[n-1]
		r.free = r.free[:n-1]
		rec.gen = r.records[slot].gen
		r.records[slot] = rec
	} else {
		slot = uint32(len(r.records))
		r.records = append(r.records, rec)
	}
	r.live++

	return &Func{reg: r, slot: slot, gen: rec.gen}
}

// Len returns the number of closures not yet released.
func (r *Registry) Len() int {
	return r.live
}

// Stats returns live, executing and destroyed counts.
func (r *Registry) Stats() Stats {
	s := Stats{Live: r.live, Destroyed: r.destroyed}
	for i := range r.records {
		if r.records[i].used && r.records[i].state == StateExecuting {
			s.Executing++
		}
	}
	return s
}

// Close invalidates every record without running destructors. The guest
// is going away, so there is no one left to run them.
func (r *Registry) Close() {
	for i := range r.records {
		if r.records[i].used {
			r.retire(uint32(i))
		}
	}
	r.records = nil
	r.free = nil
}

func (r *Registry) lookup(slot, gen uint32) *record {
	if slot >= uint32(len(r.records)) {
		return nil
	}
	rec := &r.records[slot]
	if !rec.used || rec.gen != gen {
		return nil
	}
	return rec
}

func (r *Registry) retire(slot uint32) {
	rec := &r.records[slot]
	rec.state = StateReleased
	rec.ctx = 0
	rec.used = false
	rec.gen++
	r.free = append(r.free, slot)
	r.live--
}

// Func is the host-callable side of a guest closure.
type Func struct {
	reg  *Registry
	slot uint32
	gen  uint32
}

// ID identifies the arena slot backing f.
func (f *Func) ID() uint32 {
	return f.slot
}

// String implements fmt.Stringer.
func (f *Func) String() string {
	return fmt.Sprintf("closure#%d(%s)", f.slot, f.State())
}

// State reports the current lifecycle state.
func (f *Func) State() State {
	rec := f.reg.lookup(f.slot, f.gen)
	if rec == nil {
		return StateReleased
	}
	return rec.state
}

// Refs reports the outstanding reference count; zero once released.
func (f *Func) Refs() uint32 {
	rec := f.reg.lookup(f.slot, f.gen)
	if rec == nil {
		return 0
	}
	return rec.refs
}

// Signature returns the trampoline signature.
func (f *Func) Signature() Signature {
	rec := f.reg.lookup(f.slot, f.gen)
	if rec == nil {
		return Signature{}
	}
	return rec.sig
}

// Retain adds a host-held reference.
func (f *Func) Retain() error {
	rec := f.reg.lookup(f.slot, f.gen)
	if rec == nil {
		return errors.Released(f.slot)
	}
	rec.refs++
	return nil
}

// Release drops one reference. When the count reaches zero the guest
// destructor runs and destroyed is true.
func (f *Func) Release(ctx context.Context) (destroyed bool, err error) {
	if f.reg.lookup(f.slot, f.gen) == nil {
		return false, errors.Released(f.slot)
	}
	return f.release(ctx)
}

func (f *Func) release(ctx context.Context) (bool, error) {
	rec := &f.reg.records[f.slot]
	rec.refs--
	if rec.refs > 0 {
		return false, nil
	}

	destroy, a, b := rec.destroy, rec.ctx, rec.env
	f.reg.retire(f.slot)
	f.reg.destroyed++

	if _, err := f.reg.table.CallIndirect(ctx, destroy, 0, uint64(a), uint64(b)); err != nil {
		return true, errors.Wrap(errors.PhaseClosure, errors.KindContractViolation, err, "closure destructor")
	}
	return true, nil
}

// Call invokes the guest trampoline with args converted to fresh handles.
// The guest owns those handles. A handle result is taken back out of the
// heap and returned; without a result Call returns nil.
func (f *Func) Call(ctx context.Context, args ...any) (any, error) {
	rec := f.reg.lookup(f.slot, f.gen)
	if rec == nil {
		return nil, errors.Released(f.slot)
	}
	if uint32(len(args)) != rec.sig.Params {
		return nil, errors.InvalidInput(errors.PhaseClosure,
			fmt.Sprintf("closure takes %d arguments, got %d", rec.sig.Params, len(args)))
	}

	rec.refs++
	rec.depth++
	rec.state = StateExecuting
	invoke, results := rec.invoke, int(rec.sig.Results)

	params := make([]uint64, 0, 2+len(args))
	params = append(params, uint64(rec.ctx), uint64(rec.env))
	for _, arg := range args {
		params = append(params, uint64(f.reg.heap.Allocate(arg)))
	}

	out, callErr := f.reg.table.CallIndirect(ctx, invoke, results, params...)

	// Nested calls may have grown the arena; look the record up again. The
	// invocation's own reference keeps it live.
	rec = &f.reg.records[f.slot]
	rec.depth--
	if rec.depth == 0 {
		rec.state = StateArmed
	}
	_, relErr := f.release(ctx)

	if callErr != nil {
		return nil, callErr
	}

	var result any
	if results > 0 && len(out) > 0 {
		v, ok := f.reg.heap.Take(heap.Handle(uint32(out[0])))
		if !ok {
			return nil, errors.StaleHandle(errors.PhaseClosure, uint32(out[0]))
		}
		result = v
	}
	return result, relErr
}
