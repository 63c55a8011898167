package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry owns every registered State, Compute, and Command, the dependency
// graph between them, and the machinery that drives them: the command queue,
// the task supervisor, the staged-mutation buffer, and the task trace.
//
// The registry is exclusively owned by one synchronous driver goroutine.
// Everything off that goroutine goes through a Snapshot (reads) or an Updater
// (staged writes); nothing else may touch the registry concurrently.
type Registry struct {
	mu       sync.RWMutex
	states   map[TypeID]*stateEntry
	computes map[TypeID]*computeEntry
	commands map[TypeID]*commandEntry

	// Compute registration order. Dependencies must be registered before
	// their dependents, so this doubles as a topological order.
	order []TypeID

	graph *depGraph
	cache *typeCache
	dirty map[TypeID]bool

	queue   *commandQueue
	staging *stagedBuffer
	sup     *supervisor
	trace   *TaskTrace
	pools   *poolManager

	extensions []Extension
	presets    map[TypeID]any

	tags     sync.Map
	nodeTags sync.Map

	cleanupMu       sync.RWMutex
	cleanupRegistry map[TypeID][]cleanupEntry

	logger *slog.Logger
	closed atomic.Bool
}

type stateEntry struct {
	typ   TypeID
	value any
}

type computeEntry struct {
	typ         TypeID
	stateDeps   []TypeID
	computeDeps []TypeID
	eval        func(*EvalCtx) (any, error)
}

// Option is a modifier for registries.
type Option func(*Registry)

// WithExtension returns an option that registers an extension.
func WithExtension(ext Extension) Option {
	return func(r *Registry) {
		if err := r.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithRegistryTag returns an option that sets a tag on the registry.
func WithRegistryTag[T any](tag Tag[T], val T) Option {
	return func(r *Registry) {
		tag.SetOnRegistry(r, val)
	}
}

// WithLogger returns an option that sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithTraceLimit returns an option that bounds the task trace node count.
func WithTraceLimit(limit int) Option {
	return func(r *Registry) {
		r.trace = newTaskTrace(limit)
	}
}

// WithStatePreset returns an option that replaces a state's initial value at
// registration time. Used in tests to substitute fixtures for real values.
func WithStatePreset[T any](value T) Option {
	return func(r *Registry) {
		r.presets[TypeOf[T]()] = value
	}
}

// New creates a registry with optional configuration.
func New(opts ...Option) *Registry {
	r := &Registry{
		states:          make(map[TypeID]*stateEntry),
		computes:        make(map[TypeID]*computeEntry),
		commands:        make(map[TypeID]*commandEntry),
		graph:           newDepGraph(),
		cache:           newTypeCache(),
		dirty:           make(map[TypeID]bool),
		queue:           newCommandQueue(),
		trace:           newTaskTrace(1000),
		pools:           newPoolManager(),
		extensions:      []Extension{},
		presets:         make(map[TypeID]any),
		cleanupRegistry: make(map[TypeID][]cleanupEntry),
		logger:          slog.Default(),
	}
	r.staging = newStagedBuffer(r.pools)
	r.sup = newSupervisor(r)

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// NodeOption is a modifier applied to a type registration.
type NodeOption func(r *Registry, typ TypeID)

// WithNodeTag returns an option that sets a tag on the registered type.
func WithNodeTag[T any](tag Tag[T], val T) NodeOption {
	return func(r *Registry, typ TypeID) {
		tag.Set(r, typ, val)
	}
}

// WithName sets the human-readable name extensions report for the type.
func WithName(name string) NodeOption {
	return func(r *Registry, typ TypeID) {
		nameTag.Set(r, typ, name)
	}
}

// AddState registers the single live instance of state type T. Panics if T
// is already registered; one instance per type is the whole contract.
func AddState[T any](r *Registry, value T, opts ...NodeOption) {
	typ := TypeOf[T]()

	r.mu.Lock()
	if _, dup := r.states[typ]; dup {
		r.mu.Unlock()
		panic(fmt.Sprintf("reactor: state %v already registered", typ))
	}
	if _, dup := r.computes[typ]; dup {
		r.mu.Unlock()
		panic(fmt.Sprintf("reactor: %v already registered as a compute", typ))
	}
	if preset, ok := r.presets[typ]; ok {
		value = preset.(T)
	}
	r.states[typ] = &stateEntry{typ: typ, value: value}
	r.mu.Unlock()

	for _, opt := range opts {
		opt(r, typ)
	}
}

// StateOf reads the current value of state T. Panics if T was never
// registered; silent defaults would hide a programming error.
func StateOf[T any](r *Registry) T {
	typ := TypeOf[T]()

	r.mu.RLock()
	entry, ok := r.states[typ]
	r.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("reactor: state %v not registered", typ))
	}
	return entry.value.(T)
}

// UpdateState mutates state T in place on the owner goroutine and marks its
// dependents dirty for the next synchronization pass.
func UpdateState[T any](r *Registry, fn func(*T)) error {
	typ := TypeOf[T]()

	op := &Operation{Kind: OpUpdate, Type: typ, Registry: r}
	_, err := r.wrapExtensions(op, func() (any, error) {
		r.mu.Lock()
		entry, ok := r.states[typ]
		if !ok {
			r.mu.Unlock()
			panic(fmt.Sprintf("reactor: state %v not registered", typ))
		}
		v := entry.value.(T)
		fn(&v)
		entry.value = v
		r.markDependentsDirtyLocked(typ)
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// ComputeSpec declares a derived value: its initial cached value, the fixed
// dependency lists, and the evaluation function. Eval must be pure: it reads
// declared dependencies through the EvalCtx and may request commands, but must
// never block or perform I/O itself.
type ComputeSpec[T any] struct {
	Initial  T
	States   []TypeID
	Computes []TypeID
	Eval     func(ctx *EvalCtx) (T, error)
}

// RecordCompute registers compute type T. Every declared dependency must
// already be registered, which keeps the graph acyclic and makes registration
// order a valid evaluation order.
func RecordCompute[T any](r *Registry, spec ComputeSpec[T], opts ...NodeOption) {
	typ := TypeOf[T]()
	if spec.Eval == nil {
		panic(fmt.Sprintf("reactor: compute %v has no Eval function", typ))
	}

	r.mu.Lock()
	if _, dup := r.computes[typ]; dup {
		r.mu.Unlock()
		panic(fmt.Sprintf("reactor: compute %v already registered", typ))
	}
	if _, dup := r.states[typ]; dup {
		r.mu.Unlock()
		panic(fmt.Sprintf("reactor: %v already registered as a state", typ))
	}
	for _, dep := range spec.States {
		if _, ok := r.states[dep]; !ok {
			r.mu.Unlock()
			panic(fmt.Sprintf("reactor: compute %v declares unregistered state %v", typ, dep))
		}
	}
	for _, dep := range spec.Computes {
		if _, ok := r.computes[dep]; !ok {
			r.mu.Unlock()
			panic(fmt.Sprintf("reactor: compute %v declares unregistered compute %v", typ, dep))
		}
	}

	eval := spec.Eval
	entry := &computeEntry{
		typ:         typ,
		stateDeps:   append([]TypeID(nil), spec.States...),
		computeDeps: append([]TypeID(nil), spec.Computes...),
		eval: func(ctx *EvalCtx) (any, error) {
			return eval(ctx)
		},
	}
	r.computes[typ] = entry
	r.order = append(r.order, typ)
	r.cache.Store(typ, spec.Initial)
	r.mu.Unlock()

	for _, dep := range entry.stateDeps {
		r.graph.AddDependency(typ, dep)
	}
	for _, dep := range entry.computeDeps {
		r.graph.AddDependency(typ, dep)
	}

	for _, opt := range opts {
		opt(r, typ)
	}
}

// Cached reads compute T's last computed value without forcing recomputation.
func Cached[T any](r *Registry) (T, bool) {
	typ := TypeOf[T]()

	r.mu.RLock()
	_, registered := r.computes[typ]
	r.mu.RUnlock()
	if !registered {
		panic(fmt.Sprintf("reactor: compute %v not registered", typ))
	}

	val, ok := r.cache.Load(typ)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// ComputeOf reads compute T, first recomputing it and any dirty upstream
// computes it depends on.
func ComputeOf[T any](r *Registry) (T, error) {
	typ := TypeOf[T]()

	r.mu.RLock()
	_, registered := r.computes[typ]
	r.mu.RUnlock()
	if !registered {
		panic(fmt.Sprintf("reactor: compute %v not registered", typ))
	}

	if err := r.runPass(r.upstreamClosure(typ)); err != nil {
		var zero T
		return zero, err
	}

	val, _ := r.cache.Load(typ)
	return val.(T), nil
}

// MarkClean suppresses a pending recomputation of the given compute type.
func (r *Registry) MarkClean(typ TypeID) {
	r.mu.Lock()
	delete(r.dirty, typ)
	r.mu.Unlock()
}

// IsDirty reports whether a compute is pending recomputation.
func (r *Registry) IsDirty(typ TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty[typ]
}

// UseExtension registers an extension to the registry.
func (r *Registry) UseExtension(ext Extension) error {
	r.mu.Lock()
	r.extensions = append(r.extensions, ext)
	sort.SliceStable(r.extensions, func(i, j int) bool {
		return r.extensions[i].Order() < r.extensions[j].Order()
	})
	r.mu.Unlock()

	return ext.Init(r)
}

// GetTag retrieves a tag value from the registry.
func (r *Registry) GetTag(tag any) (any, bool) {
	return r.tags.Load(tag)
}

// SetTag stores a tag value on the registry.
func (r *Registry) SetTag(tag any, val any) {
	r.tags.Store(tag, val)
}

type nodeTagKey struct {
	typ TypeID
	tag any
}

func (r *Registry) nodeTag(typ TypeID, tag any) (any, bool) {
	return r.nodeTags.Load(nodeTagKey{typ: typ, tag: tag})
}

func (r *Registry) setNodeTag(typ TypeID, tag any, val any) {
	r.nodeTags.Store(nodeTagKey{typ: typ, tag: tag}, val)
}

// NodeName returns the registered display name for a type, falling back to
// the Go type name.
func (r *Registry) NodeName(typ TypeID) string {
	if name, ok := nameTag.Get(r, typ); ok {
		return name
	}
	return typ.String()
}

// ExportDependencyGraph returns a copy of the downstream adjacency, for
// debugging extensions.
func (r *Registry) ExportDependencyGraph() map[TypeID][]TypeID {
	return r.graph.Export()
}

// TransitiveDependents returns everything downstream of typ, directly or
// through intermediate computes.
func (r *Registry) TransitiveDependents(typ TypeID) []TypeID {
	return r.graph.FindDependents(typ)
}

// Trace returns the task trace for querying.
func (r *Registry) Trace() *TaskTrace {
	return r.trace
}

// Logger returns the registry logger.
func (r *Registry) Logger() *slog.Logger {
	return r.logger
}

// PoolMetrics returns hit/miss counters for the internal object pools.
func (r *Registry) PoolMetrics() PoolMetrics {
	return r.pools.Metrics()
}

// TaskCount returns the number of in-flight supervised tasks.
func (r *Registry) TaskCount() int {
	return r.sup.taskCount()
}

// DrainTasks blocks until every in-flight task has finished or ctx expires.
// It does not cancel anything; pair with FlushCommands in test harnesses.
func (r *Registry) DrainTasks(ctx context.Context) error {
	return r.sup.drain(ctx)
}

// FlushCommands drains the pending command queue, snapshots each request's
// declared dependencies, and spawns the bodies as supervised tasks.
func (r *Registry) FlushCommands() error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	return r.sup.flush()
}

// Shutdown cancels every outstanding task, waits for all of them to exit,
// discards any staged writebacks, runs registered cleanups, and disposes
// extensions. After Shutdown the driving-loop operations return
// ErrRegistryClosed.
func (r *Registry) Shutdown(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrRegistryClosed
	}

	err := r.sup.shutdown(ctx)
	r.staging.close()
	r.queue.drain()

	r.cleanupMu.Lock()
	type nodeCleanups struct {
		typ     TypeID
		entries []cleanupEntry
	}
	all := make([]nodeCleanups, 0, len(r.cleanupRegistry))
	for typ, entries := range r.cleanupRegistry {
		all = append(all, nodeCleanups{typ, entries})
	}
	r.cleanupRegistry = make(map[TypeID][]cleanupEntry)
	r.cleanupMu.Unlock()

	for i := len(all) - 1; i >= 0; i-- {
		r.runCleanups(all[i].entries, all[i].typ, "shutdown")
	}

	for _, ext := range r.snapshotExtensions() {
		if extErr := ext.Dispose(r); extErr != nil {
			err = errors.Join(err, fmt.Errorf("disposing extension %s: %w", ext.Name(), extErr))
		}
	}

	return err
}

func (r *Registry) snapshotExtensions() []Extension {
	r.mu.RLock()
	exts := make([]Extension, len(r.extensions))
	copy(exts, r.extensions)
	r.mu.RUnlock()
	return exts
}

// wrapExtensions chains extension middleware around an operation, last
// registered wrapping first, and reports errors to OnError.
func (r *Registry) wrapExtensions(op *Operation, next func() (any, error)) (any, error) {
	exts := r.snapshotExtensions()

	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	result, err := next()
	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, r)
		}
	}
	return result, err
}

func (r *Registry) markDependentsDirtyLocked(typ TypeID) {
	for _, dep := range r.graph.DirectDependents(typ) {
		if _, isCompute := r.computes[dep]; isCompute {
			r.dirty[dep] = true
		}
	}
}

func (r *Registry) registerCleanups(typ TypeID, entries []cleanupEntry) {
	if len(entries) == 0 {
		return
	}

	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()
	r.cleanupRegistry[typ] = entries
}

func (r *Registry) cleanupNode(typ TypeID, cleanupContext string) {
	r.cleanupMu.Lock()
	entries := r.cleanupRegistry[typ]
	delete(r.cleanupRegistry, typ)
	r.cleanupMu.Unlock()

	if len(entries) == 0 {
		return
	}

	r.runCleanups(entries, typ, cleanupContext)
}

func (r *Registry) runCleanups(entries []cleanupEntry, typ TypeID, cleanupContext string) {
	exts := r.snapshotExtensions()

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		if err := entry.fn(); err != nil {
			cleanupErr := &CleanupError{
				Type:    typ,
				Err:     err,
				Context: cleanupContext,
			}

			handled := false
			for _, ext := range exts {
				if ext.OnCleanupError(cleanupErr) {
					handled = true
					break
				}
			}
			if !handled {
				r.logger.Warn("cleanup failed",
					"type", typ.String(),
					"context", cleanupContext,
					"error", err)
			}
		}
	}
}
