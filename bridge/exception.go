package bridge

import (
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/heap"
)

// Exception slot status words.
const (
	StatusOK     uint32 = 0
	StatusThrown uint32 = 1
)

// ThrownError carries a host value across the boundary as an error. A
// fallible host function returning one throws Value itself rather than the
// error; __wbindgen_rethrow aborts the guest call with one.
type ThrownError struct {
	Value any
}

func (e *ThrownError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "thrown: " + err.Error()
	}
	return fmt.Sprintf("thrown: %v", e.Value)
}

// Unwrap returns Value when it is an error.
func (e *ThrownError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Exception is the decoded content of an exception slot.
type Exception struct {
	Thrown bool
	Handle heap.Handle
	Value  any
}

// Err returns the thrown value as an error, or nil.
func (e Exception) Err() error {
	if !e.Thrown {
		return nil
	}
	if err, ok := e.Value.(error); ok {
		return err
	}
	return &ThrownError{Value: e.Value}
}

// WriteException records err in the two-word slot at exnptr: status 1 and
// a fresh handle to the thrown value.
func (b *Bridge) WriteException(exnptr uint32, err error) error {
	if b.marshal == nil {
		return errors.NotInitialized(errors.PhaseCall, "bridge")
	}
	var thrown any = err
	if te, ok := err.(*ThrownError); ok {
		thrown = te.Value
	}
	h := b.heap.Allocate(thrown)
	if werr := b.marshal.WritePair(exnptr, StatusThrown, uint32(h)); werr != nil {
		b.heap.Drop(h)
		return werr
	}
	return nil
}

// ReadException decodes the slot at exnptr without consuming it.
func (b *Bridge) ReadException(exnptr uint32) (Exception, error) {
	if b.marshal == nil {
		return Exception{}, errors.NotInitialized(errors.PhaseCall, "bridge")
	}
	status, err := b.marshal.ReadU32(exnptr)
	if err != nil {
		return Exception{}, err
	}
	if status != StatusThrown {
		return Exception{}, nil
	}
	raw, err := b.marshal.ReadU32(exnptr + 4)
	if err != nil {
		return Exception{}, err
	}
	h := heap.Handle(raw)
	v, ok := b.heap.Get(h)
	if !ok {
		return Exception{}, errors.StaleHandle(errors.PhaseCall, raw)
	}
	return Exception{Thrown: true, Handle: h, Value: v}, nil
}

// TakeException decodes the slot at exnptr, drops the error handle and
// resets the status word.
func (b *Bridge) TakeException(exnptr uint32) (Exception, error) {
	exc, err := b.ReadException(exnptr)
	if err != nil || !exc.Thrown {
		return exc, err
	}
	b.heap.Drop(exc.Handle)
	if err := b.marshal.WriteU32(exnptr, StatusOK); err != nil {
		return exc, err
	}
	return exc, nil
}
