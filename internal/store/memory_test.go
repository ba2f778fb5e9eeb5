package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

func TestMemoryEdgesUpsert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.SaveEdges(ctx, []graph.Edge{{From: 1, To: 2, Weight: 3}, {From: 0, To: 1, Weight: 1}})
	_ = m.SaveEdges(ctx, []graph.Edge{{From: 1, To: 2, Weight: 7}})
	got, err := m.LoadEdges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].From != 0 || got[1].Weight != 7 {
		t.Fatalf("edges = %+v", got)
	}
}

func TestMemoryTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a, b, c := model.NewTask(0, 1), model.NewTask(1, 2), model.NewTask(2, 3)
	if err := m.CreateTasks(ctx, []*model.Task{a, b, c}); err != nil {
		t.Fatal(err)
	}
	// duplicates are ignored
	_ = m.CreateTasks(ctx, []*model.Task{a})

	d := model.Dispatch{TaskID: a.ID, ExecutorID: "v1", Path: graph.Path{0, 1}, DispatchedAt: time.Now()}
	if err := m.RecordDispatch(ctx, d); err != nil {
		t.Fatal(err)
	}
	rec, err := m.GetTask(ctx, a.ID)
	if err != nil || rec.Status != model.StatusDispatched || rec.ExecutorID != "v1" || rec.DispatchedAt == nil {
		t.Fatalf("record = %+v, %v", rec, err)
	}
	_ = m.UpdateStatus(ctx, a.ID, model.StatusCompleted)
	_ = m.UpdateStatus(ctx, b.ID, model.StatusRejected)

	pending, _ := m.PendingTasks(ctx)
	if len(pending) != 1 || pending[0].ID != c.ID {
		t.Fatalf("pending = %v", pending)
	}
	if rec, _ := m.GetTask(ctx, a.ID); rec.CompletedAt == nil {
		t.Fatalf("completion time not set")
	}
	if _, err := m.GetTask(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
	if err := m.UpdateStatus(ctx, "missing", model.StatusQueued); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing status update: %v", err)
	}
	if err := m.RecordDispatch(ctx, model.Dispatch{TaskID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("dispatch of unknown task: %v", err)
	}
}

func TestMemoryRequeueClearsDispatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := model.NewTask(0, 1)
	_ = m.CreateTasks(ctx, []*model.Task{a})
	_ = m.RecordDispatch(ctx, model.Dispatch{TaskID: a.ID, ExecutorID: "v1", Path: graph.Path{0, 1}, DispatchedAt: time.Now()})
	_ = m.UpdateStatus(ctx, a.ID, model.StatusQueued)
	rec, _ := m.GetTask(ctx, a.ID)
	if rec.Status != model.StatusQueued || rec.ExecutorID != "" || rec.DispatchedAt != nil {
		t.Fatalf("record = %+v", rec)
	}
}

func TestMemoryListDispatchesPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var ts []*model.Task
	for i := 0; i < 5; i++ {
		ts = append(ts, model.NewTask(0, 1))
	}
	_ = m.CreateTasks(ctx, ts)
	for _, tk := range ts {
		_ = m.RecordDispatch(ctx, model.Dispatch{TaskID: tk.ID, ExecutorID: "v", Path: graph.Path{0, 1}})
	}
	var all []model.Dispatch
	cursor := ""
	for {
		page, next, err := m.ListDispatches(ctx, cursor, 2)
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	if len(all) != 5 || all[0].TaskID != ts[0].ID || all[4].TaskID != ts[4].ID {
		t.Fatalf("paged %d dispatches", len(all))
	}
	if _, _, err := m.ListDispatches(ctx, "x", 2); !errors.Is(err, ErrBadCursor) {
		t.Fatalf("bad cursor: %v", err)
	}
}
