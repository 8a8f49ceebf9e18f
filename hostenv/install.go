package hostenv

import (
	"context"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/closure"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/memview"
)

// Import names registered by Install.
const (
	ImportWindow              = "window"
	ImportWindowDocument      = "window_document"
	ImportRequestFrame        = "request_animation_frame"
	ImportCancelFrame         = "cancel_animation_frame"
	ImportAddEventListener    = "add_event_listener"
	ImportRemoveEventListener = "remove_event_listener"
	ImportKeyboardEventKey    = "keyboard_event_key"
	ImportConsoleLog          = "console_log"
	ImportConsoleLogF32       = "console_log_f32"
	ImportPerformanceNow      = "performance_now"
)

// Install registers the window API on b.
func Install(b *bridge.Bridge, w *Window) error {
	funcs := []struct {
		name string
		fn   any
	}{
		{ImportWindow, func() *Window { return w }},
		{ImportWindowDocument, func(win *Window) *EventTarget {
			if win == nil {
				return nil
			}
			return win.Document
		}},
		{ImportRequestFrame, func(win *Window, fn *closure.Func) (int32, error) {
			if win == nil || fn == nil {
				return 0, errors.InvalidInput(errors.PhaseHost, "request_animation_frame needs a window and a closure")
			}
			return win.Loop.RequestFrame(fn)
		}},
		{ImportCancelFrame, func(ctx context.Context, win *Window, id int32) {
			if win != nil {
				win.Loop.CancelFrame(ctx, id)
			}
		}},
		{ImportAddEventListener, func(t *EventTarget, typ string, fn *closure.Func) error {
			if t == nil || fn == nil {
				return errors.InvalidInput(errors.PhaseHost, "add_event_listener needs a target and a closure")
			}
			return t.AddEventListener(typ, fn)
		}},
		{ImportRemoveEventListener, func(ctx context.Context, t *EventTarget, typ string, fn *closure.Func) {
			if t != nil && fn != nil {
				t.RemoveEventListener(ctx, typ, fn)
			}
		}},
		{ImportKeyboardEventKey, func(ev *KeyboardEvent) string {
			if ev == nil {
				return ""
			}
			return ev.Key
		}},
		{ImportConsoleLog, func(msg string) { w.Console.Log(msg) }},
		{ImportConsoleLogF32, func(v memview.Float32View) { w.Console.Log(formatFloats(v)) }},
		{ImportPerformanceNow, func(win *Window) float64 {
			if win == nil {
				return 0
			}
			return win.Now()
		}},
	}
	for _, f := range funcs {
		if err := b.Register(f.name, f.fn); err != nil {
			return err
		}
	}
	return nil
}

func formatFloats(v memview.Float32View) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i := uint32(0); i < v.Len(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatFloat(float64(v.Get(i)), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
