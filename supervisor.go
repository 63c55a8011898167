package reactor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// supervisor owns the in-flight task set. At most one authoritative task per
// origin type: flushing a new request for an origin cancels the older task
// and bumps the latest generation, so the older writeback (if it still
// arrives) fails the staleness check.
type supervisor struct {
	reg *Registry
	gen *TaskIDGenerator

	mu       sync.Mutex
	running  map[*supervisedTask]struct{}
	inflight map[TypeID]*supervisedTask
	latest   map[TypeID]uint64

	group      errgroup.Group
	root       context.Context
	rootCancel context.CancelFunc
}

type supervisedTask struct {
	id        TaskID
	handle    *TaskHandle
	ctxCancel context.CancelFunc
	done      chan struct{}
}

func newSupervisor(reg *Registry) *supervisor {
	root, cancel := context.WithCancel(context.Background())
	return &supervisor{
		reg:        reg,
		gen:        NewTaskIDGenerator(),
		running:    make(map[*supervisedTask]struct{}),
		inflight:   make(map[TypeID]*supervisedTask),
		latest:     make(map[TypeID]uint64),
		root:       root,
		rootCancel: cancel,
	}
}

// flush drains the queue on the owner goroutine and spawns each request.
func (s *supervisor) flush() error {
	for _, req := range s.reg.queue.drain() {
		if err := s.spawn(req); err != nil {
			return err
		}
	}
	return nil
}

func (s *supervisor) spawn(req commandRequest) error {
	reg := s.reg

	reg.mu.RLock()
	entry, ok := reg.commands[req.origin]
	reg.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("reactor: command %v not registered", req.origin))
	}

	// Snapshot on the owner goroutine, before the body ever exists, so the
	// spawned work never borrows the live registry.
	snap := reg.snapshotFor(req.origin, entry.deps)

	id := s.gen.Next(req.origin)
	exts := reg.snapshotExtensions()
	for _, ext := range exts {
		if err := ext.OnTaskStart(id); err != nil {
			return fmt.Errorf("extension %s rejected task %s: %w", ext.Name(), id, err)
		}
	}

	taskCtx, cancel := context.WithCancel(s.root)
	handle := NewTaskHandle(id, cancel)
	t := &supervisedTask{
		id:        id,
		handle:    handle,
		ctxCancel: cancel,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.latest[req.origin] = id.Generation
	prev := s.inflight[req.origin]
	s.inflight[req.origin] = t
	s.running[t] = struct{}{}
	s.mu.Unlock()

	if prev != nil {
		prev.handle.Cancel()
	}

	nodeID := reg.trace.begin(id, req.requester, reg.NodeName(req.origin))
	up := &Updater{reg: reg, task: id}
	run := entry.run
	logger := reg.logger

	s.group.Go(func() error {
		start := time.Now()
		var err error

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					stack := debug.Stack()
					err = fmt.Errorf("panic in command %v: %v", req.origin, rec)
					for _, ext := range exts {
						ext.OnTaskPanic(id, rec, stack)
					}
				}
			}()
			err = run(taskCtx, handle.Token(), snap, up)
		}()

		status := TaskSucceeded
		switch {
		case handle.Cancelled() || errors.Is(err, context.Canceled):
			status = TaskCancelled
		case err != nil:
			status = TaskFailed
		}
		reg.trace.end(nodeID, status, err)

		for i := len(exts) - 1; i >= 0; i-- {
			exts[i].OnTaskEnd(id, err)
		}

		if err != nil {
			logger.Debug("task finished with error",
				"task", id.String(),
				"status", status.String(),
				"elapsed", time.Since(start),
				"error", err)
		}

		s.finish(t)
		close(t.done)

		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return nil
}

func (s *supervisor) finish(t *supervisedTask) {
	s.mu.Lock()
	delete(s.running, t)
	if s.inflight[t.id.Origin] == t {
		delete(s.inflight, t.id.Origin)
	}
	s.mu.Unlock()
	t.ctxCancel()
}

// isStale reports whether a completed task's generation has been superseded.
func (s *supervisor) isStale(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id.Generation < s.latest[id.Origin]
}

func (s *supervisor) latestGeneration(origin TypeID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[origin]
}

func (s *supervisor) taskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// drain waits until the in-flight set is empty. Tasks spawned while draining
// are waited on too.
func (s *supervisor) drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		pending := make([]*supervisedTask, 0, len(s.running))
		for t := range s.running {
			pending = append(pending, t)
		}
		s.mu.Unlock()

		if len(pending) == 0 {
			return nil
		}

		for _, t := range pending {
			select {
			case <-t.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// shutdown cancels every outstanding task and awaits all of them, so no
// writeback can be staged after teardown. The first non-cancellation body
// error is returned as diagnostics.
func (s *supervisor) shutdown(ctx context.Context) error {
	s.mu.Lock()
	tasks := make([]*supervisedTask, 0, len(s.running))
	for t := range s.running {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.handle.Cancel()
	}
	s.rootCancel()

	if err := s.drain(ctx); err != nil {
		return err
	}
	return s.group.Wait()
}
