// Package reactor provides a typed reactive runtime for Go: a registry of
// mutable states, memoized computes derived from them, and supervised
// asynchronous commands that feed results back into the cache.
//
// # Overview
//
// Reactor organizes code around three core concepts:
//
//  1. States: registered, exclusively-owned units of mutable ground truth
//  2. Computes: cached pure derivations with a declared, constant dependency set
//  3. Commands: requested side effects, executed as supervised async tasks
//
// # Basic Usage
//
// Register states and computes, then drive the loop:
//
//	type Counter struct{ N int }
//	type Doubled struct{ N int }
//
//	reg := reactor.New()
//	reactor.AddState(reg, Counter{})
//
//	reactor.RecordCompute(reg, reactor.ComputeSpec[Doubled]{
//	    States: []reactor.TypeID{reactor.TypeOf[Counter]()},
//	    Eval: func(ctx *reactor.EvalCtx) (Doubled, error) {
//	        c := reactor.Dep[Counter](ctx)
//	        return Doubled{N: c.N * 2}, nil
//	    },
//	})
//
//	reactor.UpdateState(reg, func(c *Counter) { c.N = 5 })
//	reg.SyncComputes()
//
//	d, _ := reactor.Cached[Doubled](reg) // Doubled{N: 10}
//
// # The Driving Loop
//
// A single owner goroutine drives the runtime, typically once per frame or
// tick:
//
//	for running {
//	    reg.SyncComputes()   // apply staged writebacks, recompute dirty computes
//	    reg.FlushCommands()  // snapshot inputs, spawn supervised tasks
//	}
//	reg.Shutdown(ctx)
//
// Compute evaluation never suspends and never performs I/O. The only
// sanctioned way to cause a side effect from evaluation is to request a
// command:
//
//	Eval: func(ctx *reactor.EvalCtx) (Profile, error) {
//	    session := reactor.Dep[Session](ctx)
//	    if session.LoggedIn && !session.ProfileLoaded {
//	        reactor.RequestCommand[FetchProfile](ctx)
//	    }
//	    ...
//	}
//
// # Commands
//
// A command declares which states/computes its body needs. At spawn time the
// supervisor copies exactly that set into a Snapshot, so the body never
// touches the live registry:
//
//	reactor.RecordCommand(reg, reactor.CommandSpec[FetchProfile]{
//	    Deps: []reactor.TypeID{reactor.TypeOf[Session]()},
//	    Run: func(ctx context.Context, tok reactor.CancelToken, snap *reactor.Snapshot, up *reactor.Updater) error {
//	        session := reactor.Snap[Session](snap)
//	        profile, err := fetchProfile(ctx, session.Token)
//	        if err != nil {
//	            reactor.Set(up, Profile{Failed: true})
//	            return err
//	        }
//	        reactor.Set(up, profile)
//	        return nil
//	    },
//	})
//
//	reactor.Dispatch[FetchProfile](reg)
//
// Values staged through the Updater are applied at the start of the next
// SyncComputes, never immediately.
//
// # Superseding and Staleness
//
// Every spawned task carries a TaskID: its command type plus a monotonic
// generation. Flushing a second request for the same command cancels the
// older task, and an older task's writeback, should it finish anyway, is
// dropped by generation comparison. At most one authoritative in-flight task
// per command type ever writes back.
//
// # Cancellation
//
// Cancellation is cooperative, never preemptive. Long-running bodies poll the
// token or select on its Done channel:
//
//	Run: func(ctx context.Context, tok reactor.CancelToken, snap *reactor.Snapshot, up *reactor.Updater) error {
//	    for _, chunk := range work {
//	        if tok.Cancelled() {
//	            return nil
//	        }
//	        process(chunk)
//	    }
//	    ...
//	}
//
// A body that ignores its token runs to completion; the generation check
// still rejects its writeback if it was superseded.
//
// # Extensions
//
// Extensions provide cross-cutting concerns through lifecycle hooks:
//
//	type TimingExtension struct {
//	    reactor.BaseExtension
//	}
//
//	func (e *TimingExtension) Wrap(ctx context.Context, next func() (any, error), op *reactor.Operation) (any, error) {
//	    start := time.Now()
//	    result, err := next()
//	    log.Printf("%s %v took %v", op.Kind, op.Type, time.Since(start))
//	    return result, err
//	}
//
//	reg := reactor.New(
//	    reactor.WithExtension(&TimingExtension{
//	        BaseExtension: reactor.NewBaseExtension("timing"),
//	    }),
//	)
//
// # Testing with Presets
//
// Replace a state's initial value with a fixture:
//
//	reg := reactor.New(
//	    reactor.WithStatePreset(Session{LoggedIn: true, Token: "test"}),
//	)
//
// Test harnesses drive the same loop the host does, then drain:
//
//	reg.FlushCommands()
//	reg.DrainTasks(ctx)
//	reg.SyncComputes()
//
// # Task Trace
//
// Query recent task history for observability:
//
//	for _, node := range reg.Trace().GetRoots() {
//	    fmt.Printf("%s: %s\n", node.Origin, node.Status)
//	}
//
// # Thread Safety
//
// The registry is owned by one synchronous goroutine. Command bodies run on
// their own goroutines but only ever see Snapshots (isolated copies) and
// stage writes through the Updater, so no locks are needed around bodies.
package reactor
