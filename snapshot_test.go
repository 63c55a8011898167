package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapTags struct{ Tags []string }

func (s snapTags) CloneValue() any {
	return snapTags{Tags: append([]string(nil), s.Tags...)}
}

type snapPlain struct{ N int }

type snapConn struct{ fd int }

func (snapConn) NonTransferable() {}

type snapSocket struct{ fd int }

func (*snapSocket) NonTransferable() {}

type snapResult struct{ Tags []string }
type snapCmd struct{}
type snapBadCmd struct{}

func TestSnapshotIsIsolatedFromLaterMutations(t *testing.T) {
	gate := make(chan struct{})

	reg := New()
	AddState(reg, snapTags{Tags: []string{"original"}})
	AddState(reg, snapResult{})
	RecordCommand(reg, CommandSpec[snapCmd]{
		Deps: []TypeID{TypeOf[snapTags]()},
		Run: func(ctx context.Context, tok CancelToken, snap *Snapshot, up *Updater) error {
			<-gate
			Set(up, snapResult{Tags: Snap[snapTags](snap).Tags})
			return nil
		},
	})

	require.NoError(t, Dispatch[snapCmd](reg))

	// Mutate the live slice while the body holds its snapshot.
	require.NoError(t, UpdateState(reg, func(s *snapTags) { s.Tags[0] = "mutated" }))
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, reg.DrainTasks(ctx))
	require.NoError(t, reg.SyncComputes())

	assert.Equal(t, []string{"original"}, StateOf[snapResult](reg).Tags)
	assert.Equal(t, []string{"mutated"}, StateOf[snapTags](reg).Tags)
}

func TestSnapshotCoversDeclaredSetOnly(t *testing.T) {
	reg := New()
	AddState(reg, snapPlain{N: 7})
	AddState(reg, snapTags{})

	snap := reg.snapshotFor(TypeOf[snapCmd](), []TypeID{TypeOf[snapPlain]()})

	assert.Equal(t, 1, snap.Len())
	assert.True(t, snap.Has(TypeOf[snapPlain]()))
	assert.False(t, snap.Has(TypeOf[snapTags]()))
	assert.False(t, snap.Taken().IsZero())
	assert.Equal(t, 7, Snap[snapPlain](snap).N)

	assert.Panics(t, func() {
		Snap[snapTags](snap)
	})
}

func TestSnapshotOfComputeUsesCachedValue(t *testing.T) {
	reg := New()
	AddState(reg, snapPlain{N: 2})
	RecordCompute(reg, ComputeSpec[snapResult]{
		Initial: snapResult{Tags: []string{"initial"}},
		States:  []TypeID{TypeOf[snapPlain]()},
		Eval: func(ctx *EvalCtx) (snapResult, error) {
			return snapResult{}, nil
		},
	})

	snap := reg.snapshotFor(TypeOf[snapCmd](), []TypeID{TypeOf[snapResult]()})
	assert.Equal(t, []string{"initial"}, Snap[snapResult](snap).Tags)
}

func TestNonTransferableDependencyRejectedAtRegistration(t *testing.T) {
	reg := New()
	AddState(reg, snapConn{fd: 3})

	assert.Panics(t, func() {
		RecordCommand(reg, CommandSpec[snapBadCmd]{
			Deps: []TypeID{TypeOf[snapConn]()},
			Run: func(ctx context.Context, tok CancelToken, snap *Snapshot, up *Updater) error {
				return nil
			},
		})
	})
}

func TestNonTransferableDetectsEitherReceiverForm(t *testing.T) {
	assert.True(t, isNonTransferable(TypeOf[snapConn]()))
	assert.True(t, isNonTransferable(TypeOf[snapSocket]()))
	assert.False(t, isNonTransferable(TypeOf[snapPlain]()))
}

func TestSnapshotForUnregisteredDependencyPanics(t *testing.T) {
	reg := New()

	assert.Panics(t, func() {
		reg.snapshotFor(TypeOf[snapCmd](), []TypeID{TypeOf[snapPlain]()})
	})
}
