package reactor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upCounter struct{ N int }
type upOther struct{ N int }

func TestSetStagesUntilNextSync(t *testing.T) {
	reg := New()
	AddState(reg, upCounter{N: 1})

	up := &Updater{reg: reg}
	Set(up, upCounter{N: 99})

	// Still the old value until the owner goroutine runs a pass.
	assert.Equal(t, 1, StateOf[upCounter](reg).N)

	require.NoError(t, reg.SyncComputes())
	assert.Equal(t, 99, StateOf[upCounter](reg).N)
}

func TestSetAppliesInStagingOrder(t *testing.T) {
	reg := New()
	AddState(reg, upCounter{})

	up := &Updater{reg: reg}
	Set(up, upCounter{N: 1})
	Set(up, upCounter{N: 2})
	Set(up, upCounter{N: 3})

	require.NoError(t, reg.SyncComputes())
	assert.Equal(t, 3, StateOf[upCounter](reg).N)
}

func TestSetUnregisteredTypePanics(t *testing.T) {
	reg := New()
	up := &Updater{reg: reg}

	assert.Panics(t, func() {
		Set(up, upOther{N: 1})
	})
}

func TestSetMarksDependentsDirty(t *testing.T) {
	reg := New()
	AddState(reg, upCounter{})
	RecordCompute(reg, ComputeSpec[upOther]{
		States: []TypeID{TypeOf[upCounter]()},
		Eval: func(ctx *EvalCtx) (upOther, error) {
			return upOther{N: Dep[upCounter](ctx).N * 10}, nil
		},
	})

	up := &Updater{reg: reg}
	Set(up, upCounter{N: 4})

	require.NoError(t, reg.SyncComputes())
	other, _ := Cached[upOther](reg)
	assert.Equal(t, 40, other.N)
}

func TestSetOnComputeOverridesCachedValue(t *testing.T) {
	reg := New()
	AddState(reg, upCounter{})
	RecordCompute(reg, ComputeSpec[upOther]{
		Initial: upOther{N: 0},
		States:  []TypeID{TypeOf[upCounter]()},
		Eval: func(ctx *EvalCtx) (upOther, error) {
			return upOther{N: Dep[upCounter](ctx).N}, nil
		},
	})

	up := &Updater{reg: reg}
	Set(up, upOther{N: 77})

	require.NoError(t, reg.SyncComputes())
	other, _ := Cached[upOther](reg)
	assert.Equal(t, 77, other.N)
}

func TestLateWritebacksDiscardedAfterShutdown(t *testing.T) {
	reg := New()
	AddState(reg, upCounter{N: 1})
	require.NoError(t, reg.Shutdown(context.Background()))

	up := &Updater{reg: reg}
	assert.NotPanics(t, func() {
		Set(up, upCounter{N: 99})
	})

	// Nothing was buffered; the closed staging area drops late writes.
	assert.Nil(t, reg.staging.take())
	assert.Equal(t, 1, StateOf[upCounter](reg).N)
}

func TestUpdaterTaskBinding(t *testing.T) {
	gen := NewTaskIDGenerator()
	id := gen.Next(TypeOf[upCounter]())

	reg := New()
	up := &Updater{reg: reg, task: id}
	assert.Equal(t, id, up.Task())

	assert.True(t, (&Updater{reg: reg}).Task().IsZero())
}
