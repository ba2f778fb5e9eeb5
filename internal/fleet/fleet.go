// Package fleet is the executor side of dispatching: the pool the scheduler
// draws idle executors from, and a reference Manager that drives simulated
// vehicles along their reserved paths.
package fleet

import (
	"context"
	"errors"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

var (
	ErrUnknownExecutor = errors.New("fleet: unknown executor")
	ErrOffline         = errors.New("fleet: executor offline")
	ErrBusy            = errors.New("fleet: executor busy")
	ErrBadPath         = errors.New("fleet: path does not start at the task source")
)

// Executor carries out one task at a time along a path the traffic
// controller has already reserved for it.
type Executor interface {
	ID() string
	ExecuteJob(ctx context.Context, t *model.Task, p graph.Path) error
}

// Pool is the scheduler's view of the fleet.
type Pool interface {
	OnlineExecutorsNumber() int
	FreeExecutorsNumber() int
	// ClosestFreeExecutor returns the idle executor cheapest to bring to the
	// task's source, or false if none is idle.
	ClosestFreeExecutor(t *model.Task) (Executor, bool)
	// RefreshExecutors updates online state from heartbeats.
	RefreshExecutors() error
	// PerformRequests services executors' pending movement requests.
	PerformRequests() error
}
