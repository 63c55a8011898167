package reactor

import (
	"fmt"
	"reflect"
	"time"
)

// Cloner lets a state or compute type supply a deep copy for snapshotting.
// Types that hold interior pointers (maps, slices, pointers) should implement
// it; plain value types are copied by assignment.
type Cloner interface {
	CloneValue() any
}

// NonTransferable marks a type that must never cross the asynchronous
// boundary, such as one holding platform resources. Declaring such a type as
// a command dependency is a configuration error caught at registration.
type NonTransferable interface {
	NonTransferable()
}

var nonTransferableType = reflect.TypeOf((*NonTransferable)(nil)).Elem()

func isNonTransferable(typ TypeID) bool {
	return typ.Implements(nonTransferableType) ||
		reflect.PointerTo(typ).Implements(nonTransferableType)
}

// Snapshot is an immutable, independently-owned copy of the states and
// computes a command declared, taken once at spawn time. The spawned body
// reads the snapshot instead of borrowing the live registry, so no locking is
// needed around command bodies.
type Snapshot struct {
	values map[TypeID]any
	taken  time.Time
}

// Snap reads a snapshotted value. Reading a type the command never declared
// is a contract violation and panics.
func Snap[T any](s *Snapshot) T {
	typ := TypeOf[T]()
	val, ok := s.values[typ]
	if !ok {
		panic(fmt.Sprintf("reactor: %v was not declared by this command's snapshot set", typ))
	}
	return val.(T)
}

// Has reports whether the snapshot covers typ.
func (s *Snapshot) Has(typ TypeID) bool {
	_, ok := s.values[typ]
	return ok
}

// Len returns the number of snapshotted values.
func (s *Snapshot) Len() int {
	return len(s.values)
}

// Taken returns the time the snapshot was captured.
func (s *Snapshot) Taken() time.Time {
	return s.taken
}

// snapshotFor copies the declared dependency set on the owner goroutine.
// Registration already rejected non-transferable declarations; the check here
// defends the dispatch path against types registered after the command.
func (r *Registry) snapshotFor(origin TypeID, deps []TypeID) *Snapshot {
	snap := &Snapshot{
		values: make(map[TypeID]any, len(deps)),
		taken:  time.Now(),
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, dep := range deps {
		if isNonTransferable(dep) {
			panic(fmt.Sprintf("reactor: command %v declares non-transferable dependency %v", origin, dep))
		}

		if entry, ok := r.states[dep]; ok {
			snap.values[dep] = cloneValue(entry.value)
			continue
		}
		if _, ok := r.computes[dep]; ok {
			val, ok := r.cache.Load(dep)
			if !ok {
				panic(fmt.Sprintf("reactor: compute %v has no value to snapshot", dep))
			}
			snap.values[dep] = cloneValue(val)
			continue
		}
		panic(fmt.Sprintf("reactor: command %v declares unregistered dependency %v", origin, dep))
	}

	return snap
}

func cloneValue(v any) any {
	if c, ok := v.(Cloner); ok {
		return c.CloneValue()
	}
	return v
}
