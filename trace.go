package reactor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a supervised task.
type TaskStatus int

const (
	TaskRunning TaskStatus = iota
	TaskSucceeded
	TaskFailed
	TaskCancelled
)

func (s TaskStatus) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskNode is one finished or running task in the trace. A command requested
// from inside another command's body is recorded as a child of the requester.
type TaskNode struct {
	ID       string
	ParentID string
	Task     TaskID
	Origin   string
	Status   TaskStatus
	Start    time.Time
	End      time.Time
	Err      error
}

// TaskTrace is a bounded history of supervised tasks, for diagnostics and
// test harnesses. When the node count exceeds the limit the oldest root and
// its subtree are evicted.
type TaskTrace struct {
	mu       sync.RWMutex
	nodes    map[string]*TaskNode
	byParent map[string][]string
	byTask   map[TaskID]string
	roots    []string
	limit    int
}

func newTaskTrace(limit int) *TaskTrace {
	return &TaskTrace{
		nodes:    make(map[string]*TaskNode),
		byParent: make(map[string][]string),
		byTask:   make(map[TaskID]string),
		roots:    []string{},
		limit:    limit,
	}
}

// begin records a spawned task and returns its trace node id.
func (t *TaskTrace) begin(id TaskID, requester TaskID, origin string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := &TaskNode{
		ID:     uuid.NewString(),
		Task:   id,
		Origin: origin,
		Status: TaskRunning,
		Start:  time.Now(),
	}
	if !requester.IsZero() {
		if parentID, ok := t.byTask[requester]; ok {
			node.ParentID = parentID
		}
	}

	t.nodes[node.ID] = node
	t.byTask[id] = node.ID

	if node.ParentID == "" {
		t.roots = append(t.roots, node.ID)
	} else {
		t.byParent[node.ParentID] = append(t.byParent[node.ParentID], node.ID)
	}

	if len(t.nodes) > t.limit {
		t.evictOldest()
	}

	return node.ID
}

// end finalizes a node recorded by begin.
func (t *TaskTrace) end(nodeID string, status TaskStatus, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[nodeID]
	if !ok {
		return // evicted while running
	}
	node.Status = status
	node.End = time.Now()
	node.Err = err
}

func (t *TaskTrace) evictOldest() {
	if len(t.roots) == 0 {
		return
	}

	oldestRoot := t.roots[0]
	t.roots = t.roots[1:]

	t.removeSubtree(oldestRoot)
}

func (t *TaskTrace) removeSubtree(nodeID string) {
	if node, ok := t.nodes[nodeID]; ok {
		delete(t.byTask, node.Task)
	}
	delete(t.nodes, nodeID)

	children := t.byParent[nodeID]
	delete(t.byParent, nodeID)

	for _, childID := range children {
		t.removeSubtree(childID)
	}
}

// GetNode returns a node by trace id.
func (t *TaskTrace) GetNode(id string) *TaskNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[id]
}

// GetByTask returns the node for a TaskID, if still retained.
func (t *TaskTrace) GetByTask(id TaskID) *TaskNode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if nodeID, ok := t.byTask[id]; ok {
		return t.nodes[nodeID]
	}
	return nil
}

// GetRoots returns tasks that were not requested by another task.
func (t *TaskTrace) GetRoots() []*TaskNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	roots := make([]*TaskNode, 0, len(t.roots))
	for _, rootID := range t.roots {
		if node := t.nodes[rootID]; node != nil {
			roots = append(roots, node)
		}
	}
	return roots
}

// GetChildren returns the tasks requested from within the given node's body.
func (t *TaskTrace) GetChildren(id string) []*TaskNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	childIDs := t.byParent[id]
	children := make([]*TaskNode, 0, len(childIDs))
	for _, childID := range childIDs {
		if node := t.nodes[childID]; node != nil {
			children = append(children, node)
		}
	}
	return children
}

// Filter returns all retained nodes matching the predicate.
func (t *TaskTrace) Filter(predicate func(*TaskNode) bool) []*TaskNode {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*TaskNode
	for _, node := range t.nodes {
		if predicate(node) {
			result = append(result, node)
		}
	}
	return result
}

// Walk visits rootID's subtree depth-first until the visitor returns false.
func (t *TaskTrace) Walk(rootID string, visitor func(*TaskNode) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.walkLocked(rootID, visitor)
}

func (t *TaskTrace) walkLocked(nodeID string, visitor func(*TaskNode) bool) {
	node := t.nodes[nodeID]
	if node == nil {
		return
	}

	if !visitor(node) {
		return
	}

	for _, childID := range t.byParent[nodeID] {
		t.walkLocked(childID, visitor)
	}
}

// Len returns the number of retained nodes.
func (t *TaskTrace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}
