package extensions

import (
	"context"
	"log/slog"
	"time"

	reactor "github.com/reactor-fn/reactor-go"
)

// LoggingExtension logs evaluations, updates, and task lifecycle events.
type LoggingExtension struct {
	reactor.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a new logging extension.
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: reactor.NewBaseExtension("logging"),
		logger:        logger,
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *reactor.Operation) (any, error) {
	start := time.Now()
	result, err := next()

	duration := time.Since(start)
	if err != nil {
		e.logger.Error("operation failed",
			"op", string(op.Kind),
			"type", op.Type.String(),
			"duration", duration,
			"error", err)
	} else {
		e.logger.Debug("operation completed",
			"op", string(op.Kind),
			"type", op.Type.String(),
			"duration", duration)
	}

	return result, err
}

func (e *LoggingExtension) OnTaskStart(id reactor.TaskID) error {
	e.logger.Debug("task started", "task", id.String())
	return nil
}

func (e *LoggingExtension) OnTaskEnd(id reactor.TaskID, err error) {
	if err != nil {
		e.logger.Warn("task ended", "task", id.String(), "error", err)
		return
	}
	e.logger.Debug("task ended", "task", id.String())
}

func (e *LoggingExtension) OnStaleDrop(id reactor.TaskID, typ reactor.TypeID, latest uint64) {
	e.logger.Info("stale writeback dropped",
		"task", id.String(),
		"type", typ.String(),
		"latest_generation", latest)
}
