package reactor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncCounter struct{ N int }
type syncDoubled struct{ N int }
type syncQuad struct{ N int }

type syncLeftState struct{ N int }
type syncRightState struct{ N int }
type syncLeft struct{ N int }
type syncRight struct{ N int }

func newDoubledRegistry(t *testing.T, evals *int) *Registry {
	t.Helper()

	reg := New()
	AddState(reg, syncCounter{N: 0})
	RecordCompute(reg, ComputeSpec[syncDoubled]{
		States: []TypeID{TypeOf[syncCounter]()},
		Eval: func(ctx *EvalCtx) (syncDoubled, error) {
			if evals != nil {
				*evals++
			}
			return syncDoubled{N: Dep[syncCounter](ctx).N * 2}, nil
		},
	})
	return reg
}

func TestSyncRecomputesDirtyDependents(t *testing.T) {
	reg := newDoubledRegistry(t, nil)

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 5 }))
	require.True(t, reg.IsDirty(TypeOf[syncDoubled]()))

	require.NoError(t, reg.SyncComputes())

	doubled, ok := Cached[syncDoubled](reg)
	require.True(t, ok)
	assert.Equal(t, 10, doubled.N)
	assert.False(t, reg.IsDirty(TypeOf[syncDoubled]()))
}

func TestSyncIsIdempotent(t *testing.T) {
	evals := 0
	reg := newDoubledRegistry(t, &evals)

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 5 }))
	require.NoError(t, reg.SyncComputes())
	require.Equal(t, 1, evals)

	// Nothing changed: a second pass must not touch the compute.
	require.NoError(t, reg.SyncComputes())
	assert.Equal(t, 1, evals)
}

func TestSyncCascadesThroughChainInOnePass(t *testing.T) {
	reg := New()
	AddState(reg, syncCounter{N: 0})
	RecordCompute(reg, ComputeSpec[syncDoubled]{
		States: []TypeID{TypeOf[syncCounter]()},
		Eval: func(ctx *EvalCtx) (syncDoubled, error) {
			return syncDoubled{N: Dep[syncCounter](ctx).N * 2}, nil
		},
	})
	RecordCompute(reg, ComputeSpec[syncQuad]{
		Computes: []TypeID{TypeOf[syncDoubled]()},
		Eval: func(ctx *EvalCtx) (syncQuad, error) {
			return syncQuad{N: Dep[syncDoubled](ctx).N * 2}, nil
		},
	})

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 3 }))
	require.NoError(t, reg.SyncComputes())

	quad, ok := Cached[syncQuad](reg)
	require.True(t, ok)
	assert.Equal(t, 12, quad.N)
}

func TestSyncOnlyTouchesAffectedComputes(t *testing.T) {
	leftEvals, rightEvals := 0, 0

	reg := New()
	AddState(reg, syncLeftState{N: 1})
	AddState(reg, syncRightState{N: 1})
	RecordCompute(reg, ComputeSpec[syncLeft]{
		States: []TypeID{TypeOf[syncLeftState]()},
		Eval: func(ctx *EvalCtx) (syncLeft, error) {
			leftEvals++
			return syncLeft{N: Dep[syncLeftState](ctx).N}, nil
		},
	})
	RecordCompute(reg, ComputeSpec[syncRight]{
		States: []TypeID{TypeOf[syncRightState]()},
		Eval: func(ctx *EvalCtx) (syncRight, error) {
			rightEvals++
			return syncRight{N: Dep[syncRightState](ctx).N}, nil
		},
	})

	require.NoError(t, UpdateState(reg, func(s *syncLeftState) { s.N = 9 }))
	require.NoError(t, reg.SyncComputes())

	assert.Equal(t, 1, leftEvals)
	assert.Equal(t, 0, rightEvals)
}

func TestMarkCleanSuppressesRecomputation(t *testing.T) {
	evals := 0
	reg := newDoubledRegistry(t, &evals)

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 5 }))
	reg.MarkClean(TypeOf[syncDoubled]())

	require.NoError(t, reg.SyncComputes())

	assert.Equal(t, 0, evals)
	doubled, _ := Cached[syncDoubled](reg)
	assert.Equal(t, 0, doubled.N)
}

func TestComputeOfForcesUpstreamChainOnly(t *testing.T) {
	rightEvals := 0

	reg := New()
	AddState(reg, syncCounter{N: 0})
	AddState(reg, syncRightState{N: 1})
	RecordCompute(reg, ComputeSpec[syncDoubled]{
		States: []TypeID{TypeOf[syncCounter]()},
		Eval: func(ctx *EvalCtx) (syncDoubled, error) {
			return syncDoubled{N: Dep[syncCounter](ctx).N * 2}, nil
		},
	})
	RecordCompute(reg, ComputeSpec[syncQuad]{
		Computes: []TypeID{TypeOf[syncDoubled]()},
		Eval: func(ctx *EvalCtx) (syncQuad, error) {
			return syncQuad{N: Dep[syncDoubled](ctx).N * 2}, nil
		},
	})
	RecordCompute(reg, ComputeSpec[syncRight]{
		States: []TypeID{TypeOf[syncRightState]()},
		Eval: func(ctx *EvalCtx) (syncRight, error) {
			rightEvals++
			return syncRight{N: Dep[syncRightState](ctx).N}, nil
		},
	})

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 4 }))
	require.NoError(t, UpdateState(reg, func(s *syncRightState) { s.N = 2 }))

	quad, err := ComputeOf[syncQuad](reg)
	require.NoError(t, err)
	assert.Equal(t, 16, quad.N)

	// The unrelated compute was not forced and is still pending.
	assert.True(t, reg.IsDirty(TypeOf[syncRight]()))
	assert.Equal(t, 0, rightEvals)
}

func TestUndeclaredDependencyReadPanics(t *testing.T) {
	reg := New()
	AddState(reg, syncCounter{N: 1})
	AddState(reg, syncRightState{N: 1})
	RecordCompute(reg, ComputeSpec[syncDoubled]{
		States: []TypeID{TypeOf[syncCounter]()},
		Eval: func(ctx *EvalCtx) (syncDoubled, error) {
			// Reads a state it never declared.
			return syncDoubled{N: Dep[syncRightState](ctx).N}, nil
		},
	})

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 2 }))

	assert.Panics(t, func() {
		_ = reg.SyncComputes()
	})
}

func TestEvalErrorLeavesComputeDirtyAndCacheIntact(t *testing.T) {
	fail := true

	reg := New()
	AddState(reg, syncCounter{N: 1})
	RecordCompute(reg, ComputeSpec[syncDoubled]{
		Initial: syncDoubled{N: -1},
		States:  []TypeID{TypeOf[syncCounter]()},
		Eval: func(ctx *EvalCtx) (syncDoubled, error) {
			if fail {
				return syncDoubled{}, errors.New("upstream unavailable")
			}
			return syncDoubled{N: Dep[syncCounter](ctx).N * 2}, nil
		},
	})

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 5 }))

	err := reg.SyncComputes()
	require.Error(t, err)

	var evalErr *EvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, TypeOf[syncDoubled](), evalErr.Type)

	// Last good value survives and the node stays pending for a retry.
	doubled, _ := Cached[syncDoubled](reg)
	assert.Equal(t, -1, doubled.N)
	assert.True(t, reg.IsDirty(TypeOf[syncDoubled]()))

	fail = false
	require.NoError(t, reg.SyncComputes())
	doubled, _ = Cached[syncDoubled](reg)
	assert.Equal(t, 10, doubled.N)
}

func TestCleanupRunsOnRecomputeAndShutdown(t *testing.T) {
	cleanups := 0

	reg := New()
	AddState(reg, syncCounter{N: 1})
	RecordCompute(reg, ComputeSpec[syncDoubled]{
		States: []TypeID{TypeOf[syncCounter]()},
		Eval: func(ctx *EvalCtx) (syncDoubled, error) {
			ctx.OnCleanup(func() error {
				cleanups++
				return nil
			})
			return syncDoubled{N: Dep[syncCounter](ctx).N * 2}, nil
		},
	})

	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 2 }))
	require.NoError(t, reg.SyncComputes())
	assert.Equal(t, 0, cleanups)

	// Replacing the value tears down the previous one.
	require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = 3 }))
	require.NoError(t, reg.SyncComputes())
	assert.Equal(t, 1, cleanups)

	require.NoError(t, reg.Shutdown(context.Background()))
	assert.Equal(t, 2, cleanups)
}

func TestPoolMetricsAccountForEveryEvaluation(t *testing.T) {
	evals := 0
	reg := newDoubledRegistry(t, &evals)

	for i := 1; i <= 3; i++ {
		require.NoError(t, UpdateState(reg, func(c *syncCounter) { c.N = i }))
		require.NoError(t, reg.SyncComputes())
	}

	m := reg.PoolMetrics()
	assert.Equal(t, uint64(evals), m.EvalCtxHits+m.EvalCtxMisses)
}
