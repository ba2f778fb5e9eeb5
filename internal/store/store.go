package store

import (
	"context"
	"errors"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

// Store persists the route graph, tasks and dispatch history so a restart
// picks up where it left off.
type Store interface {
	// Graph
	SaveEdges(ctx context.Context, edges []graph.Edge) error
	LoadEdges(ctx context.Context) ([]graph.Edge, error)

	// Tasks
	CreateTasks(ctx context.Context, tasks []*model.Task) error
	GetTask(ctx context.Context, id string) (model.TaskRecord, error)
	// PendingTasks returns tasks not yet completed or rejected, oldest first.
	PendingTasks(ctx context.Context) ([]*model.Task, error)
	UpdateStatus(ctx context.Context, id, status string) error

	// Dispatches
	RecordDispatch(ctx context.Context, d model.Dispatch) error
	ListDispatches(ctx context.Context, cursor string, limit int) ([]model.Dispatch, string, error)

	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound  = errors.New("not found")
	ErrBadCursor = errors.New("invalid cursor")
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
