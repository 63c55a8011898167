package reactor

import (
	"fmt"
)

// SyncComputes runs one synchronization pass on the owner goroutine: staged
// mutations are applied first (atomically with respect to this pass, stale
// generations dropped), then every dirty compute is re-evaluated in dependency
// order. Running it again with nothing dirty is a no-op.
func (r *Registry) SyncComputes() error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}

	r.applyStaged()
	return r.runPass(nil)
}

// applyStaged drains the updater buffer and applies each mutation in the
// order it was staged. A mutation whose generation is older than the latest
// one spawned for its origin lost the race and is dropped, not applied.
func (r *Registry) applyStaged() {
	muts := r.staging.take()
	if muts == nil {
		return
	}
	defer r.pools.releaseMutationSlice(muts)

	exts := r.snapshotExtensions()

	for _, m := range muts {
		if !m.task.IsZero() && r.sup.isStale(m.task) {
			latest := r.sup.latestGeneration(m.task.Origin)
			for _, ext := range exts {
				ext.OnStaleDrop(m.task, m.typ, latest)
			}
			r.logger.Debug("dropped stale writeback",
				"task", m.task.String(),
				"type", m.typ.String(),
				"latest", latest)
			continue
		}

		r.mu.Lock()
		if entry, ok := r.states[m.typ]; ok {
			entry.value = m.value
			r.markDependentsDirtyLocked(m.typ)
			r.mu.Unlock()
			continue
		}
		if _, ok := r.computes[m.typ]; ok {
			r.mu.Unlock()
			r.cleanupNode(m.typ, "staged")
			r.cache.Store(m.typ, m.value)
			r.mu.Lock()
			r.markDependentsDirtyLocked(m.typ)
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()
		// Unregistered types are rejected at staging time; reaching here
		// means the type was never registered at all.
		panic(fmt.Sprintf("reactor: staged mutation for unregistered type %v", m.typ))
	}
}

// runPass recomputes dirty computes in registration (topological) order. When
// relevant is non-nil the pass is restricted to that subgraph, which is how
// ComputeOf forces only the target's upstream chain.
func (r *Registry) runPass(relevant map[TypeID]struct{}) error {
	r.mu.RLock()
	order := make([]TypeID, len(r.order))
	copy(order, r.order)
	r.mu.RUnlock()

	for _, typ := range order {
		if relevant != nil {
			if _, ok := relevant[typ]; !ok {
				continue
			}
		}

		r.mu.Lock()
		if !r.dirty[typ] {
			r.mu.Unlock()
			continue
		}
		delete(r.dirty, typ)
		entry := r.computes[typ]
		r.mu.Unlock()

		if err := r.recompute(entry); err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) recompute(entry *computeEntry) error {
	ctx := r.pools.acquireEvalCtx(r, entry.typ, entry.stateDeps, entry.computeDeps)
	defer r.pools.releaseEvalCtx(ctx)

	op := &Operation{Kind: OpEval, Type: entry.typ, Registry: r}
	result, err := r.wrapExtensions(op, func() (any, error) {
		return entry.eval(ctx)
	})
	if err != nil {
		// Leave the node dirty so the next pass retries.
		r.mu.Lock()
		r.dirty[entry.typ] = true
		r.mu.Unlock()
		return newEvalError(entry.typ, err, "sync")
	}

	r.cleanupNode(entry.typ, "recompute")
	r.registerCleanups(entry.typ, ctx.takeCleanups())
	r.cache.Store(entry.typ, result)

	r.mu.Lock()
	r.markDependentsDirtyLocked(entry.typ)
	r.mu.Unlock()

	return nil
}

// upstreamClosure returns target plus everything it transitively reads.
func (r *Registry) upstreamClosure(target TypeID) map[TypeID]struct{} {
	closure := make(map[TypeID]struct{})
	stack := []TypeID{target}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := closure[current]; seen {
			continue
		}
		closure[current] = struct{}{}

		stack = append(stack, r.graph.DirectDependencies(current)...)
	}

	return closure
}
