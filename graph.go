package reactor

import (
	"sync"
)

// depGraph tracks which computes read which states and computes.
//
// Edges point from a dependency to its dependents (downstream) and back
// (upstream). Compute registration requires every declared dependency to be
// registered first, so compute registration order is already a topological
// order of the compute subgraph.
type depGraph struct {
	downstream map[TypeID][]TypeID
	upstream   map[TypeID][]TypeID
	mu         sync.RWMutex
}

func newDepGraph() *depGraph {
	return &depGraph{
		downstream: make(map[TypeID][]TypeID),
		upstream:   make(map[TypeID][]TypeID),
	}
}

// AddDependency records that dependent reads dependency.
func (g *depGraph) AddDependency(dependent, dependency TypeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.downstream[dependency] = appendUnique(g.downstream[dependency], dependent)
	g.upstream[dependent] = appendUnique(g.upstream[dependent], dependency)
}

// FindDependents performs iterative traversal to find all transitive
// dependents of start. Iterative rather than recursive so a deep chain can't
// overflow the stack.
func (g *depGraph) FindDependents(start TypeID) []TypeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stack := make([]TypeID, 0, 32)
	stack = append(stack, start)

	dependents := make([]TypeID, 0, 32)
	visited := make(map[TypeID]bool, 32)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true

		if current != start {
			dependents = append(dependents, current)
		}

		for _, dep := range g.downstream[current] {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}

	return dependents
}

// DirectDependents returns only direct dependents (no traversal).
func (g *depGraph) DirectDependents(typ TypeID) []TypeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if deps, exists := g.downstream[typ]; exists {
		result := make([]TypeID, len(deps))
		copy(result, deps)
		return result
	}
	return nil
}

// DirectDependencies returns the declared upstream set of typ.
func (g *depGraph) DirectDependencies(typ TypeID) []TypeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if deps, exists := g.upstream[typ]; exists {
		result := make([]TypeID, len(deps))
		copy(result, deps)
		return result
	}
	return nil
}

// Export returns a copy of the downstream adjacency for debugging tools.
func (g *depGraph) Export() map[TypeID][]TypeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[TypeID][]TypeID, len(g.downstream))
	for k, v := range g.downstream {
		cp := make([]TypeID, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}
