package reactor

import (
	"context"
	"fmt"
	"sync"
)

// CommandSpec declares a side-effecting operation: the states/computes its
// body needs snapshotted, and the body itself. Run executes as a supervised
// asynchronous task; a body that finishes immediately is simply a task that
// completes immediately. Errors must be translated into staged outcome values
// through the Updater — they never propagate into the graph.
type CommandSpec[C any] struct {
	Deps []TypeID
	Run  func(ctx context.Context, tok CancelToken, snap *Snapshot, up *Updater) error
}

type commandEntry struct {
	typ  TypeID
	deps []TypeID
	run  func(ctx context.Context, tok CancelToken, snap *Snapshot, up *Updater) error
}

// RecordCommand registers command type C. Declared dependencies must already
// be registered and transferable; both are configuration errors and panic.
func RecordCommand[C any](r *Registry, spec CommandSpec[C], opts ...NodeOption) {
	typ := TypeOf[C]()
	if spec.Run == nil {
		panic(fmt.Sprintf("reactor: command %v has no Run function", typ))
	}

	r.mu.Lock()
	if _, dup := r.commands[typ]; dup {
		r.mu.Unlock()
		panic(fmt.Sprintf("reactor: command %v already registered", typ))
	}
	for _, dep := range spec.Deps {
		_, isState := r.states[dep]
		_, isCompute := r.computes[dep]
		if !isState && !isCompute {
			r.mu.Unlock()
			panic(fmt.Sprintf("reactor: command %v declares unregistered dependency %v", typ, dep))
		}
		if isNonTransferable(dep) {
			r.mu.Unlock()
			panic(fmt.Sprintf("reactor: command %v declares non-transferable dependency %v", typ, dep))
		}
	}
	r.commands[typ] = &commandEntry{
		typ:  typ,
		deps: append([]TypeID(nil), spec.Deps...),
		run:  spec.Run,
	}
	r.mu.Unlock()

	for _, opt := range opts {
		opt(r, typ)
	}
}

// Enqueue stages a request for command C; the next FlushCommands spawns it.
func Enqueue[C any](r *Registry) {
	typ := TypeOf[C]()

	r.mu.RLock()
	_, ok := r.commands[typ]
	r.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("reactor: command %v not registered", typ))
	}
	r.queue.push(commandRequest{origin: typ})
}

// Dispatch is the explicit, immediate-request form used by UI and CLI
// handlers: it enqueues C and flushes right away. Both paths land in the same
// queue — commands are only ever requested, never invoked implicitly.
func Dispatch[C any](r *Registry) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	Enqueue[C](r)
	return r.FlushCommands()
}

// CommandRequester is anything that can record a command request for the next
// flush: an EvalCtx on the synchronous path, an Updater inside a task body.
type CommandRequester interface {
	requestCommand(origin TypeID)
}

// RequestCommand records a request for command C. It runs nothing itself,
// which is what keeps compute evaluation free of side effects.
func RequestCommand[C any](q CommandRequester) {
	q.requestCommand(TypeOf[C]())
}

type commandRequest struct {
	origin    TypeID
	requester TaskID
}

type commandQueue struct {
	mu      sync.Mutex
	pending []commandRequest
}

func newCommandQueue() *commandQueue {
	return &commandQueue{}
}

func (q *commandQueue) push(req commandRequest) {
	q.mu.Lock()
	q.pending = append(q.pending, req)
	q.mu.Unlock()
}

func (q *commandQueue) drain() []commandRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.pending
	q.pending = nil
	return pending
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
