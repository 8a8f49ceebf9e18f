package hostenv

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/closure"
)

// KeyboardEvent is delivered to keydown and keyup listeners.
type KeyboardEvent struct {
	Type string
	Key  string
}

// EventTarget holds listeners by event type.
type EventTarget struct {
	listeners map[string][]*closure.Func
}

// NewEventTarget creates a target with no listeners.
func NewEventTarget() *EventTarget {
	return &EventTarget{listeners: make(map[string][]*closure.Func)}
}

// AddEventListener registers fn for typ. Adding the same closure twice
// for one type has no effect.
func (t *EventTarget) AddEventListener(typ string, fn *closure.Func) error {
	if t.has(typ, fn) {
		return nil
	}
	if err := fn.Retain(); err != nil {
		return err
	}
	t.listeners[typ] = append(t.listeners[typ], fn)
	return nil
}

// RemoveEventListener unregisters fn and releases the target's reference.
func (t *EventTarget) RemoveEventListener(ctx context.Context, typ string, fn *closure.Func) {
	ls := t.listeners[typ]
	for i, l := range ls {
		if l != fn {
			continue
		}
		t.listeners[typ] = append(ls[:i], ls[i+1:]...)
		if _, err := fn.Release(ctx); err != nil {
			Logger().Warn("release listener", zap.String("type", typ), zap.Error(err))
		}
		return
	}
}

func (t *EventTarget) has(typ string, fn *closure.Func) bool {
	for _, l := range t.listeners[typ] {
		if l == fn {
			return true
		}
	}
	return false
}

// Listeners returns the number of listeners for typ.
func (t *EventTarget) Listeners(typ string) int {
	return len(t.listeners[typ])
}

// Dispatch calls every listener registered for typ when dispatch starts,
// in registration order, passing ev to listeners that take an argument.
// A listener removed by an earlier one during the same dispatch is
// skipped. It returns how many ran and the first error.
func (t *EventTarget) Dispatch(ctx context.Context, typ string, ev any) (int, error) {
	ls := append([]*closure.Func(nil), t.listeners[typ]...)

	var firstErr error
	ran := 0
	for _, fn := range ls {
		if !t.has(typ, fn) {
			continue
		}
		var err error
		if fn.Signature().Params == 1 {
			_, err = fn.Call(ctx, ev)
		} else {
			_, err = fn.Call(ctx)
		}
		ran++
		if err != nil {
			Logger().Warn("event listener failed", zap.String("type", typ), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return ran, firstErr
}

// DispatchKey sends a KeyboardEvent of type typ.
func (t *EventTarget) DispatchKey(ctx context.Context, typ, key string) (int, error) {
	return t.Dispatch(ctx, typ, &KeyboardEvent{Type: typ, Key: key})
}

// Close releases every listener.
func (t *EventTarget) Close(ctx context.Context) {
	for typ, ls := range t.listeners {
		for _, fn := range ls {
			_, _ = fn.Release(ctx)
		}
		delete(t.listeners, typ)
	}
}
