package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/m1gwings/treedrawer/tree"

	reactor "github.com/reactor-fn/reactor-go"
)

// GraphDebugExtension logs dependency graph visualization when errors occur.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext := extensions.NewGraphDebugExtension(handler)
//
//	// Silent (for testing)
//	ext := extensions.NewGraphDebugExtension(extensions.NewSilentHandler())
//
// The extension logs at ERROR level for evaluation errors and task panics.
type GraphDebugExtension struct {
	reactor.BaseExtension

	mu        sync.Mutex
	evaluated map[reactor.TypeID]bool
	failed    map[reactor.TypeID]error
	logger    *slog.Logger
}

// NewGraphDebugExtension creates a new graph debug extension.
// logHandler: slog.Handler for logging (use HumanHandler for formatted
// output, or any other slog.Handler)
func NewGraphDebugExtension(logHandler slog.Handler) *GraphDebugExtension {
	return &GraphDebugExtension{
		BaseExtension: reactor.NewBaseExtension("graph-debug"),
		evaluated:     make(map[reactor.TypeID]bool),
		failed:        make(map[reactor.TypeID]error),
		logger:        slog.New(logHandler),
	}
}

// Wrap tracks evaluations for debugging
func (e *GraphDebugExtension) Wrap(ctx context.Context, next func() (any, error), op *reactor.Operation) (any, error) {
	result, err := next()

	if op.Kind == reactor.OpEval {
		e.mu.Lock()
		if err == nil {
			e.evaluated[op.Type] = true
			delete(e.failed, op.Type)
		} else {
			e.failed[op.Type] = err
		}
		e.mu.Unlock()
	}

	return result, err
}

// OnError logs the dependency graph when an evaluation or update fails
func (e *GraphDebugExtension) OnError(err error, op *reactor.Operation, r *reactor.Registry) {
	graphOutput := e.formatDependencyGraph(r, op.Type, err)

	e.logger.Error("Dependency Evaluation Error",
		"node", r.NodeName(op.Type),
		"error", err.Error(),
		"operation", string(op.Kind),
		"dependency_graph", graphOutput,
		"dependency_tree", e.drawSubtree(r, op.Type),
	)
}

// OnTaskPanic logs context when a command body panics
func (e *GraphDebugExtension) OnTaskPanic(id reactor.TaskID, recovered any, stack []byte) {
	e.logger.Error("Task Panic",
		"task", id.String(),
		"panic", fmt.Sprintf("%v", recovered),
		"stack_trace", string(stack),
	)
}

func (e *GraphDebugExtension) formatDependencyGraph(r *reactor.Registry, failedType reactor.TypeID, failedErr error) string {
	var sb strings.Builder
	graph := r.ExportDependencyGraph()

	if len(graph) == 0 {
		sb.WriteString("\n(empty - no dependencies tracked)")
		return sb.String()
	}

	sb.WriteString("\n")

	e.mu.Lock()
	defer e.mu.Unlock()

	for parent, children := range graph {
		parentName := r.NodeName(parent)

		parentStatus := ""
		if e.evaluated[parent] {
			parentStatus = " ✓"
		} else if _, failed := e.failed[parent]; failed {
			parentStatus = " ❌"
		}

		if len(children) == 0 {
			sb.WriteString(fmt.Sprintf("  %s%s (no dependents)\n", parentName, parentStatus))
			continue
		}

		sb.WriteString(fmt.Sprintf("  %s%s\n", parentName, parentStatus))

		for i, child := range children {
			childName := r.NodeName(child)

			if child == failedType {
				childName = childName + " ❌ FAILED"
			} else if e.evaluated[child] {
				childName = childName + " ✓"
			} else if childErr, failed := e.failed[child]; failed {
				childName = fmt.Sprintf("%s ❌ (error: %v)", childName, childErr)
			}

			if i == len(children)-1 {
				sb.WriteString(fmt.Sprintf("    └─> %s\n", childName))
			} else {
				sb.WriteString(fmt.Sprintf("    ├─> %s\n", childName))
			}
		}
	}

	if failedErr != nil {
		sb.WriteString("\nError Details:\n")
		sb.WriteString(fmt.Sprintf("  Node: %s\n", r.NodeName(failedType)))
		sb.WriteString(fmt.Sprintf("  Error: %v\n", failedErr))

		if impacted := r.TransitiveDependents(failedType); len(impacted) > 0 {
			names := make([]string, 0, len(impacted))
			for _, dep := range impacted {
				names = append(names, r.NodeName(dep))
			}
			sb.WriteString(fmt.Sprintf("  Impacted: %s\n", strings.Join(names, ", ")))
		}
	}

	return sb.String()
}

// drawSubtree renders the failed node and its direct dependents as a box tree.
func (e *GraphDebugExtension) drawSubtree(r *reactor.Registry, typ reactor.TypeID) string {
	t := tree.NewTree(tree.NodeString(r.NodeName(typ)))
	for _, dep := range r.ExportDependencyGraph()[typ] {
		t.AddChild(tree.NodeString(r.NodeName(dep)))
	}
	return "\n" + fmt.Sprint(t)
}

// SilentHandler is a slog.Handler that discards all log output
// Useful for testing when you don't want log output
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false // Never enabled, discards everything
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil // Do nothing
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h // Return self, no state to modify
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h // Return self, no state to modify
}

// HumanHandler is a slog.Handler that formats logs for human readability
// with proper line breaks and visual formatting (especially for dependency
// graphs)
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	switch record.Message {
	case "Dependency Evaluation Error":
		return h.handleEvalError(record)
	case "Task Panic":
		return h.handleTaskPanic(record)
	}

	if _, err := fmt.Fprintf(h.writer, "[%s] %s\n", record.Level, record.Message); err != nil {
		return err
	}
	var writeErr error
	record.Attrs(func(a slog.Attr) bool {
		if _, err := fmt.Fprintf(h.writer, "  %s: %v\n", a.Key, a.Value); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	return writeErr
}

func (h *HumanHandler) handleEvalError(record slog.Record) error {
	var node, errorMsg, operation, dependencyGraph, dependencyTree string

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "node":
			node = a.Value.String()
		case "error":
			errorMsg = a.Value.String()
		case "operation":
			operation = a.Value.String()
		case "dependency_graph":
			dependencyGraph = a.Value.String()
		case "dependency_tree":
			dependencyTree = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[GraphDebug] Dependency Evaluation Error"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nFailed Node: %s\n", node); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Error: %s\n", errorMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Operation: %s\n", operation); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nDependency Graph:%s", dependencyGraph); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nDependents:%s\n", dependencyTree); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer); return err },
	}

	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}

	return nil
}

func (h *HumanHandler) handleTaskPanic(record slog.Record) error {
	var panicMsg, stackTrace, task string

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "panic":
			panicMsg = a.Value.String()
		case "stack_trace":
			stackTrace = a.Value.String()
		case "task":
			task = a.Value.String()
		}
		return true
	})

	writes := []func() error{
		func() error { _, err := fmt.Fprintln(h.writer); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer, "[GraphDebug] Task Panic"); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nPanic: %s\n", panicMsg); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "Task: %s\n", task); return err },
		func() error { _, err := fmt.Fprintf(h.writer, "\nStack Trace:\n%s\n", stackTrace); return err },
		func() error { _, err := fmt.Fprintln(h.writer, strings.Repeat("=", 70)); return err },
		func() error { _, err := fmt.Fprintln(h.writer); return err },
	}

	for _, write := range writes {
		if err := write(); err != nil {
			return err
		}
	}

	return nil
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}
