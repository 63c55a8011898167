package reactor

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// TypeID identifies a registered state, compute, or command by its Go type.
type TypeID = reflect.Type

// TypeOf returns the TypeID for T.
func TypeOf[T any]() TypeID {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// TaskID uniquely names one spawned unit of asynchronous work.
//
// Origin is the command type that spawned the task; Generation is a
// process-wide monotonic counter. Two tasks sharing an origin are ordered by
// generation, and a completion carrying a lower generation than the latest
// known one for its origin is stale and is discarded instead of applied.
type TaskID struct {
	Origin     TypeID
	Generation uint64
}

func (id TaskID) String() string {
	if id.Origin == nil {
		return fmt.Sprintf("task(?, gen=%d)", id.Generation)
	}
	return fmt.Sprintf("task(%s, gen=%d)", id.Origin.Name(), id.Generation)
}

// IsZero reports whether the id was never allocated by a generator.
func (id TaskID) IsZero() bool {
	return id.Origin == nil && id.Generation == 0
}

// TaskIDGenerator allocates TaskIDs from a single atomic counter.
//
// The counter is padded to a cache line so that generators embedded next to
// other hot fields don't false-share when many goroutines allocate ids.
// Atomic increments give uniqueness; no cross-thread ordering beyond that is
// provided or needed.
type TaskIDGenerator struct {
	_       [64]byte
	counter atomic.Uint64
	_       [64 - 8]byte
}

// NewTaskIDGenerator creates a generator starting at generation 1.
func NewTaskIDGenerator() *TaskIDGenerator {
	return &TaskIDGenerator{}
}

// Next returns a fresh TaskID for the given origin type.
func (g *TaskIDGenerator) Next(origin TypeID) TaskID {
	return TaskID{
		Origin:     origin,
		Generation: g.counter.Add(1),
	}
}

// CurrentGeneration exposes the counter for diagnostics without incrementing.
func (g *TaskIDGenerator) CurrentGeneration() uint64 {
	return g.counter.Load()
}
