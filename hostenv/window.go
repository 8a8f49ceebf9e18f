package hostenv

import (
	"context"
	"time"
)

// Window is the root host object handed to the guest.
type Window struct {
	Document *EventTarget
	Loop     *Loop
	Console  *Console

	start time.Time
	now   func() time.Time
}

// NewWindow creates a window whose console writes to console (may be nil).
func NewWindow(console *Console) *Window {
	if console == nil {
		console = NewConsole(nil)
	}
	w := &Window{
		Document: NewEventTarget(),
		Loop:     NewLoop(),
		Console:  console,
		now:      time.Now,
	}
	w.start = w.now()
	return w
}

// Now returns milliseconds since the window was created.
func (w *Window) Now() float64 {
	return float64(w.now().Sub(w.start).Microseconds()) / 1000
}

// RunFrame runs one frame stamped with the current time.
func (w *Window) RunFrame(ctx context.Context) error {
	return w.Loop.RunFrame(ctx, w.Now())
}

// Close releases every closure the window holds.
func (w *Window) Close(ctx context.Context) {
	w.Loop.Close(ctx)
	w.Document.Close(ctx)
}
