package extensions

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reactor "github.com/reactor-fn/reactor-go"
)

type logCounter struct{ N int }
type logDoubled struct{ N int }

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, &buf
}

func TestLoggingExtensionLogsOperations(t *testing.T) {
	logger, buf := newTestLogger()

	reg := reactor.New(reactor.WithExtension(NewLoggingExtension(logger)))
	reactor.AddState(reg, logCounter{})
	reactor.RecordCompute(reg, reactor.ComputeSpec[logDoubled]{
		States: []reactor.TypeID{reactor.TypeOf[logCounter]()},
		Eval: func(ctx *reactor.EvalCtx) (logDoubled, error) {
			return logDoubled{N: reactor.Dep[logCounter](ctx).N * 2}, nil
		},
	})

	require.NoError(t, reactor.UpdateState(reg, func(c *logCounter) { c.N = 2 }))
	require.NoError(t, reg.SyncComputes())

	out := buf.String()
	assert.Contains(t, out, "operation completed")
	assert.Contains(t, out, "op=update")
	assert.Contains(t, out, "op=eval")
	assert.Contains(t, out, "logDoubled")
}

func TestLoggingExtensionLogsFailures(t *testing.T) {
	logger, buf := newTestLogger()

	reg := reactor.New(reactor.WithExtension(NewLoggingExtension(logger)))
	reactor.AddState(reg, logCounter{})
	reactor.RecordCompute(reg, reactor.ComputeSpec[logDoubled]{
		States: []reactor.TypeID{reactor.TypeOf[logCounter]()},
		Eval: func(ctx *reactor.EvalCtx) (logDoubled, error) {
			return logDoubled{}, errors.New("no data")
		},
	})

	require.NoError(t, reactor.UpdateState(reg, func(c *logCounter) { c.N = 2 }))
	require.Error(t, reg.SyncComputes())

	out := buf.String()
	assert.Contains(t, out, "operation failed")
	assert.Contains(t, out, "no data")
}

func TestLoggingExtensionTaskHooks(t *testing.T) {
	logger, buf := newTestLogger()
	ext := NewLoggingExtension(logger)

	gen := reactor.NewTaskIDGenerator()
	id := gen.Next(reactor.TypeOf[logCounter]())

	require.NoError(t, ext.OnTaskStart(id))
	ext.OnTaskEnd(id, nil)
	ext.OnTaskEnd(id, errors.New("gone wrong"))
	ext.OnStaleDrop(id, reactor.TypeOf[logCounter](), 5)

	out := buf.String()
	assert.Contains(t, out, "task started")
	assert.Contains(t, out, "task ended")
	assert.Contains(t, out, "gone wrong")
	assert.Contains(t, out, "stale writeback dropped")
	assert.Contains(t, out, "latest_generation=5")
}
