package reactor

import (
	"sync"
	"sync/atomic"
)

// poolManager recycles the objects the hot paths churn through: EvalCtx for
// every recomputation, mutation slices for every staged batch.
type poolManager struct {
	evalCtxPool  sync.Pool
	mutationPool sync.Pool

	metrics poolCounters
}

type poolCounters struct {
	evalCtxHits    atomic.Uint64
	evalCtxMisses  atomic.Uint64
	mutationHits   atomic.Uint64
	mutationMisses atomic.Uint64
}

// PoolMetrics is a snapshot of pool hit/miss counters.
type PoolMetrics struct {
	EvalCtxHits    uint64
	EvalCtxMisses  uint64
	MutationHits   uint64
	MutationMisses uint64
}

func newPoolManager() *poolManager {
	return &poolManager{}
}

func (pm *poolManager) acquireEvalCtx(reg *Registry, target TypeID, stateDeps, computeDeps []TypeID) *EvalCtx {
	ctx, ok := pm.evalCtxPool.Get().(*EvalCtx)
	if ok {
		pm.metrics.evalCtxHits.Add(1)
		for k := range ctx.allowed {
			delete(ctx.allowed, k)
		}
		ctx.cleanups = ctx.cleanups[:0]
	} else {
		pm.metrics.evalCtxMisses.Add(1)
		ctx = &EvalCtx{
			allowed:  make(map[TypeID]struct{}, len(stateDeps)+len(computeDeps)),
			cleanups: make([]cleanupEntry, 0, 4),
		}
	}

	ctx.reg = reg
	ctx.target = target
	for _, dep := range stateDeps {
		ctx.allowed[dep] = struct{}{}
	}
	for _, dep := range computeDeps {
		ctx.allowed[dep] = struct{}{}
	}
	return ctx
}

func (pm *poolManager) releaseEvalCtx(ctx *EvalCtx) {
	if ctx == nil {
		return
	}
	ctx.reg = nil
	ctx.target = nil
	ctx.cleanups = ctx.cleanups[:0]
	pm.evalCtxPool.Put(ctx)
}

func (pm *poolManager) acquireMutationSlice() []stagedMutation {
	sp, ok := pm.mutationPool.Get().(*[]stagedMutation)
	if ok {
		pm.metrics.mutationHits.Add(1)
		return (*sp)[:0]
	}
	pm.metrics.mutationMisses.Add(1)
	return make([]stagedMutation, 0, 16)
}

func (pm *poolManager) releaseMutationSlice(s []stagedMutation) {
	if s == nil {
		return
	}
	s = s[:0]
	pm.mutationPool.Put(&s)
}

// Metrics returns a copy of the current pool counters.
func (pm *poolManager) Metrics() PoolMetrics {
	return PoolMetrics{
		EvalCtxHits:    pm.metrics.evalCtxHits.Load(),
		EvalCtxMisses:  pm.metrics.evalCtxMisses.Load(),
		MutationHits:   pm.metrics.mutationHits.Load(),
		MutationMisses: pm.metrics.mutationMisses.Load(),
	}
}
