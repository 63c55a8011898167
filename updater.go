package reactor

import (
	"fmt"
	"sync"
)

type stagedMutation struct {
	typ   TypeID
	value any
	task  TaskID
}

// stagedBuffer collects mutations staged off the owner goroutine until the
// next synchronization pass takes them. Batch slices cycle through the pool
// manager.
type stagedBuffer struct {
	mu     sync.Mutex
	pools  *poolManager
	muts   []stagedMutation
	closed bool
}

func newStagedBuffer(pools *poolManager) *stagedBuffer {
	return &stagedBuffer{pools: pools}
}

// add returns false after close; writebacks arriving during teardown are
// discarded rather than applied.
func (b *stagedBuffer) add(m stagedMutation) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if b.muts == nil {
		b.muts = b.pools.acquireMutationSlice()
	}
	b.muts = append(b.muts, m)
	return true
}

func (b *stagedBuffer) take() []stagedMutation {
	b.mu.Lock()
	defer b.mu.Unlock()
	muts := b.muts
	b.muts = nil
	return muts
}

func (b *stagedBuffer) close() {
	b.mu.Lock()
	b.muts = nil
	b.closed = true
	b.mu.Unlock()
}

// Updater is the only legal channel for staging a mutation from outside the
// synchronous owner goroutine. Each supervised task gets an Updater bound to
// its TaskID; staged values are buffered and applied at the start of the next
// SyncComputes, never immediately.
type Updater struct {
	reg  *Registry
	task TaskID
}

// Task returns the TaskID the updater is bound to. Zero for updaters created
// outside a supervised task.
func (up *Updater) Task() TaskID {
	return up.task
}

// Set stages a replacement value for state or compute type T. The write is
// applied at the next synchronization pass unless a newer task for the same
// origin was spawned in the meantime, in which case it is dropped as stale.
func Set[T any](up *Updater, value T) {
	typ := TypeOf[T]()

	up.reg.mu.RLock()
	_, isState := up.reg.states[typ]
	_, isCompute := up.reg.computes[typ]
	up.reg.mu.RUnlock()
	if !isState && !isCompute {
		panic(fmt.Sprintf("reactor: cannot stage value for unregistered type %v", typ))
	}

	up.reg.staging.add(stagedMutation{typ: typ, value: value, task: up.task})
}

// requestCommand implements CommandRequester for command bodies: a follow-up
// command is recorded for the next flush, tagged with the requesting task so
// the trace can link them.
func (up *Updater) requestCommand(origin TypeID) {
	up.reg.mu.RLock()
	_, ok := up.reg.commands[origin]
	up.reg.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("reactor: command %v not registered", origin))
	}
	up.reg.queue.push(commandRequest{origin: origin, requester: up.task})
}
