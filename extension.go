package reactor

import "context"

// Extension provides hooks into the registry lifecycle.
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a registry
	Init(r *Registry) error

	// Wrap intercepts operations (eval, update)
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors during evaluation or update
	OnError(err error, op *Operation, r *Registry)

	// OnCleanupError handles cleanup failures
	// Returns true if the error was handled, false to use default behavior
	OnCleanupError(err *CleanupError) bool

	// Task lifecycle hooks
	OnTaskStart(id TaskID) error
	OnTaskEnd(id TaskID, err error)
	OnTaskPanic(id TaskID, recovered any, stack []byte)

	// OnStaleDrop is called when a staged writeback loses the generation
	// race and is discarded
	OnStaleDrop(id TaskID, typ TypeID, latest uint64)

	// Dispose is called when the registry shuts down
	Dispose(r *Registry) error
}

// CleanupError contains information about a cleanup failure
type CleanupError struct {
	Type    TypeID
	Err     error
	Context string // "recompute", "staged" or "shutdown"
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(r *Registry) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, r *Registry) {
}

func (e *BaseExtension) OnCleanupError(err *CleanupError) bool {
	return false
}

func (e *BaseExtension) OnTaskStart(id TaskID) error {
	return nil
}

func (e *BaseExtension) OnTaskEnd(id TaskID, err error) {
}

func (e *BaseExtension) OnTaskPanic(id TaskID, recovered any, stack []byte) {
}

func (e *BaseExtension) OnStaleDrop(id TaskID, typ TypeID, latest uint64) {
}

func (e *BaseExtension) Dispose(r *Registry) error {
	return nil
}

// Operation describes what operation is happening
type Operation struct {
	Kind     OperationKind
	Type     TypeID
	Registry *Registry
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpEval indicates a compute recomputation
	OpEval OperationKind = "eval"
	// OpUpdate indicates a direct state update
	OpUpdate OperationKind = "update"
)
