package hostenv

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/closure"
)

type frameRequest struct {
	id int32
	fn *closure.Func
}

// Loop schedules frame callbacks.
type Loop struct {
	queue []frameRequest
	// running holds ids of the current frame's callbacks not yet called.
	running map[int32]bool
	nextID  int32
	frames  uint64
}

// NewLoop creates an idle loop.
func NewLoop() *Loop {
	return &Loop{nextID: 1}
}

// RequestFrame queues fn for the next frame and returns its request id.
func (l *Loop) RequestFrame(fn *closure.Func) (int32, error) {
	if err := fn.Retain(); err != nil {
		return 0, err
	}
	id := l.nextID
	l.nextID++
	l.queue = append(l.queue, frameRequest{id: id, fn: fn})
	return id, nil
}

// CancelFrame drops a request, whether it waits for the next frame or for
// its turn in the frame being run. Unknown ids are ignored.
func (l *Loop) CancelFrame(ctx context.Context, id int32) {
	for i, req := range l.queue {
		if req.id != id {
			continue
		}
		l.queue = append(l.queue[:i], l.queue[i+1:]...)
		l.release(ctx, req)
		return
	}
	// A request taken by the running frame is released when the frame
	// reaches it.
	delete(l.running, id)
}

func (l *Loop) release(ctx context.Context, req frameRequest) {
	if _, err := req.fn.Release(ctx); err != nil {
		Logger().Warn("release cancelled frame", zap.Int32("id", req.id), zap.Error(err))
	}
}

// RunFrame runs the callbacks queued before it started. Requests made
// during the frame wait for the next one; requests cancelled during the
// frame are skipped. Callbacks taking an argument receive ts. Every
// callback runs; the first error is returned.
func (l *Loop) RunFrame(ctx context.Context, ts float64) error {
	batch := l.queue
	l.queue = nil
	l.frames++
	l.running = make(map[int32]bool, len(batch))
	for _, req := range batch {
		l.running[req.id] = true
	}
	defer func() { l.running = nil }()

	var firstErr error
	for _, req := range batch {
		if !l.running[req.id] {
			l.release(ctx, req)
			continue
		}
		delete(l.running, req.id)

		var err error
		if req.fn.Signature().Params == 1 {
			_, err = req.fn.Call(ctx, ts)
		} else {
			_, err = req.fn.Call(ctx)
		}
		if _, relErr := req.fn.Release(ctx); err == nil {
			err = relErr
		}
		if err != nil {
			Logger().Warn("frame callback failed", zap.Int32("id", req.id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Pending returns the number of callbacks waiting for the next frame.
func (l *Loop) Pending() int {
	return len(l.queue)
}

// Frames returns the number of frames run.
func (l *Loop) Frames() uint64 {
	return l.frames
}

// Close releases every queued callback without running it.
func (l *Loop) Close(ctx context.Context) {
	for _, req := range l.queue {
		_, _ = req.fn.Release(ctx)
	}
	l.queue = nil
	// Callbacks left in a running frame are skipped and released by it.
	l.running = nil
}
