package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu         sync.Mutex
	edges      map[[2]graph.NodeID]float64
	tasks      map[string]*model.TaskRecord
	order      []string // task ids by creation
	dispatches []model.Dispatch
	now        func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		edges: map[[2]graph.NodeID]float64{},
		tasks: map[string]*model.TaskRecord{},
		now:   time.Now,
	}
}

func (m *Memory) SaveEdges(ctx context.Context, edges []graph.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range edges {
		m.edges[[2]graph.NodeID{e.From, e.To}] = e.Weight
	}
	return nil
}

func (m *Memory) LoadEdges(ctx context.Context) ([]graph.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]graph.Edge, 0, len(m.edges))
	for k, w := range m.edges {
		out = append(out, graph.Edge{From: k[0], To: k[1], Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out, nil
}

func (m *Memory) CreateTasks(ctx context.Context, tasks []*model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		if _, ok := m.tasks[t.ID]; ok {
			continue
		}
		m.tasks[t.ID] = &model.TaskRecord{Task: *t.Clone(), Status: model.StatusQueued}
		m.order = append(m.order, t.ID)
	}
	return nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (model.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tasks[id]
	if !ok {
		return model.TaskRecord{}, ErrNotFound
	}
	out := *r
	out.Path = r.Path.Clone()
	return out, nil
}

func (m *Memory) PendingTasks(ctx context.Context) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, id := range m.order {
		r := m.tasks[id]
		if r.Status == model.StatusCompleted || r.Status == model.StatusRejected {
			continue
		}
		out = append(out, r.Task.Clone())
	}
	return out, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	switch status {
	case model.StatusCompleted:
		now := m.now().UTC()
		r.CompletedAt = &now
	case model.StatusQueued:
		r.ExecutorID, r.DispatchedAt = "", nil
	}
	return nil
}

func (m *Memory) RecordDispatch(ctx context.Context, d model.Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.tasks[d.TaskID]
	if !ok {
		return ErrNotFound
	}
	at := d.DispatchedAt
	r.Status = model.StatusDispatched
	r.ExecutorID = d.ExecutorID
	r.DispatchedAt = &at
	r.Path = d.Path.Clone()
	d.Path = d.Path.Clone()
	m.dispatches = append(m.dispatches, d)
	return nil
}

// ListDispatches pages through dispatches oldest first. The cursor is the
// position after the last item returned.
func (m *Memory) ListDispatches(ctx context.Context, cursor string, limit int) ([]model.Dispatch, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, "", ErrBadCursor
		}
		start = n
	}
	if start > len(m.dispatches) {
		start = len(m.dispatches)
	}
	end := start + limit
	if end > len(m.dispatches) {
		end = len(m.dispatches)
	}
	out := append([]model.Dispatch{}, m.dispatches[start:end]...)
	next := ""
	if end < len(m.dispatches) {
		next = strconv.Itoa(end)
	}
	return out, next, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }
