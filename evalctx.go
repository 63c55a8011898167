package reactor

import (
	"fmt"
	"sync"
)

type cleanupEntry struct {
	fn    func() error
	order int
}

// EvalCtx is handed to a compute's evaluation function. It restricts reads to
// the dependency set the compute declared at registration: anything else is a
// contract violation and panics.
type EvalCtx struct {
	reg       *Registry
	target    TypeID
	allowed   map[TypeID]struct{}
	cleanups  []cleanupEntry
	cleanupMu sync.Mutex
}

// Dep reads a declared dependency: the current value of a state, or the last
// computed value of an upstream compute. Upstream computes are recomputed
// earlier in the same pass, so the value is never half-updated.
func Dep[T any](ctx *EvalCtx) T {
	typ := TypeOf[T]()
	if _, ok := ctx.allowed[typ]; !ok {
		panic(fmt.Sprintf("reactor: compute %v reads undeclared dependency %v", ctx.target, typ))
	}

	ctx.reg.mu.RLock()
	if entry, ok := ctx.reg.states[typ]; ok {
		v := entry.value.(T)
		ctx.reg.mu.RUnlock()
		return v
	}
	ctx.reg.mu.RUnlock()

	val, ok := ctx.reg.cache.Load(typ)
	if !ok {
		panic(fmt.Sprintf("reactor: dependency %v has no value", typ))
	}
	return val.(T)
}

// OnCleanup registers a teardown function for the value this evaluation
// produces. It runs when the value is replaced by a later recomputation or a
// staged write, and on Shutdown.
func (ctx *EvalCtx) OnCleanup(fn func() error) {
	ctx.cleanupMu.Lock()
	defer ctx.cleanupMu.Unlock()

	entry := cleanupEntry{
		fn:    fn,
		order: len(ctx.cleanups),
	}
	ctx.cleanups = append(ctx.cleanups, entry)
}

// requestCommand implements CommandRequester: evaluation never runs a command,
// it only records a request for the next flush.
func (ctx *EvalCtx) requestCommand(origin TypeID) {
	ctx.reg.mu.RLock()
	_, ok := ctx.reg.commands[origin]
	ctx.reg.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("reactor: command %v not registered", origin))
	}
	ctx.reg.queue.push(commandRequest{origin: origin})
}

func (ctx *EvalCtx) takeCleanups() []cleanupEntry {
	ctx.cleanupMu.Lock()
	defer ctx.cleanupMu.Unlock()
	entries := ctx.cleanups
	ctx.cleanups = nil
	return entries
}

// EvalTag retrieves a typed tag value from the registry.
func EvalTag[T any](ctx *EvalCtx, tag Tag[T]) (T, bool) {
	return tag.GetFromRegistry(ctx.reg)
}

// EvalTagOrDefault retrieves a typed tag or returns a default value.
func EvalTagOrDefault[T any](ctx *EvalCtx, tag Tag[T], defaultVal T) T {
	if val, ok := tag.GetFromRegistry(ctx.reg); ok {
		return val
	}
	return defaultVal
}
