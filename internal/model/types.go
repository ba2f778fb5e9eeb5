package model

import (
	"time"

	"github.com/google/uuid"

	"fleetnav/internal/graph"
)

// Task is one unit of transport work: move from Source to Destination.
// Path and Cost stay empty until the optimizer or the dispatcher picks a route.
type Task struct {
	ID          string       `json:"id"`
	Source      graph.NodeID `json:"source"`
	Destination graph.NodeID `json:"destination"`
	Path        graph.Path   `json:"path,omitempty"`
	Cost        float64      `json:"cost,omitempty"`
	EnqueuedAt  time.Time    `json:"enqueuedAt"`
}

// NewTask creates a task with a fresh id.
func NewTask(src, dst graph.NodeID) *Task {
	return &Task{ID: uuid.New().String(), Source: src, Destination: dst}
}

// SetOptimizedPath attaches the chosen route and its cost.
func (t *Task) SetOptimizedPath(p graph.Path, cost float64) {
	t.Path = p.Clone()
	t.Cost = cost
}

// Clone copies t so the copy can be changed without racing readers of t.
func (t *Task) Clone() *Task {
	c := *t
	c.Path = t.Path.Clone()
	return &c
}

// TaskIn is the intake shape accepted by the API.
type TaskIn struct {
	Source      graph.NodeID `json:"source"`
	Destination graph.NodeID `json:"destination"`
}

// Dispatch records a task handed to an executor.
type Dispatch struct {
	TaskID       string     `json:"taskId"`
	ExecutorID   string     `json:"executorId"`
	Path         graph.Path `json:"path"`
	DispatchedAt time.Time  `json:"dispatchedAt"`
}

// Reservation is the read model of one reserved edge.
type Reservation struct {
	From  graph.NodeID `json:"from"`
	To    graph.NodeID `json:"to"`
	Owner string       `json:"owner"`
}

// Task lifecycle states as persisted.
const (
	StatusQueued     = "queued"
	StatusDispatched = "dispatched"
	StatusCompleted  = "completed"
	StatusRejected   = "rejected"
)

// TaskRecord is a task with its persisted lifecycle.
type TaskRecord struct {
	Task
	Status       string     `json:"status"`
	ExecutorID   string     `json:"executorId,omitempty"`
	DispatchedAt *time.Time `json:"dispatchedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}
