package reactor

import (
	"context"
	"sync/atomic"
)

// TaskHandle binds a TaskID to a cooperative stop signal.
//
// Cancel requests a stop; it never forcibly aborts running work. A body that
// ignores its token runs to completion, and its eventual writeback is then
// rejected by the generation check instead.
type TaskHandle struct {
	id        TaskID
	cancelled *atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTaskHandle creates a handle for id. cancel may be nil when the task has
// no backing context (tests, immediate bodies).
func NewTaskHandle(id TaskID, cancel context.CancelFunc) *TaskHandle {
	return &TaskHandle{
		id:        id,
		cancelled: &atomic.Bool{},
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// ID returns the task identity the handle is bound to.
func (h *TaskHandle) ID() TaskID {
	return h.id
}

// Cancel requests a cooperative stop. Safe to call multiple times and from
// any goroutine; every token cloned from this handle observes it.
func (h *TaskHandle) Cancel() {
	if h.cancelled.CompareAndSwap(false, true) {
		close(h.done)
		if h.cancel != nil {
			h.cancel()
		}
	}
}

// Cancelled is a non-blocking check for a pending stop request.
func (h *TaskHandle) Cancelled() bool {
	return h.cancelled.Load()
}

// Token returns a cloneable token to hand to the spawned body itself.
func (h *TaskHandle) Token() CancelToken {
	return CancelToken{id: h.id, cancelled: h.cancelled, done: h.done}
}

// CancelToken is the body-side view of a TaskHandle. Copies share the same
// flag: cancelling the handle cancels every copy. Long-running bodies must
// poll Cancelled or select on Done at safe points.
type CancelToken struct {
	id        TaskID
	cancelled *atomic.Bool
	done      chan struct{}
}

// ID returns the task identity the token belongs to.
func (t CancelToken) ID() TaskID {
	return t.id
}

// Cancelled reports whether a stop has been requested.
func (t CancelToken) Cancelled() bool {
	return t.cancelled != nil && t.cancelled.Load()
}

// Done returns a channel closed when cancellation is requested. A zero token
// returns nil, which blocks forever in a select.
func (t CancelToken) Done() <-chan struct{} {
	return t.done
}
