package queue

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"fleetnav/internal/model"
)

func tasks(n int) []*model.Task {
	out := make([]*model.Task, n)
	for i := range out {
		out[i] = model.NewTask(0, 1)
	}
	return out
}

func ids(ts []*model.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func sameOrder(a, b []*model.Task) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func TestBatchEnqueuePreservesOrder(t *testing.T) {
	q := New()
	in := tasks(4)
	q.BatchEnqueue(in[:2])
	q.BatchEnqueue(in[2:])
	if !sameOrder(q.TasksList(), in) {
		t.Fatalf("order = %v, want %v", ids(q.TasksList()), ids(in))
	}
	for _, tk := range in {
		if tk.EnqueuedAt.IsZero() {
			t.Fatalf("EnqueuedAt not stamped")
		}
	}
}

func TestNextAndPop(t *testing.T) {
	q := New()
	if _, err := q.PopTask(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("pop on empty: %v", err)
	}
	if _, err := q.NextTask(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("next on empty: %v", err)
	}
	in := tasks(2)
	q.BatchEnqueue(in)
	head, _ := q.NextTask()
	if head.ID != in[0].ID || q.Len() != 2 {
		t.Fatalf("NextTask must not remove")
	}
	got, err := q.PopTask()
	if err != nil || got.ID != in[0].ID {
		t.Fatalf("PopTask = %v %v", got, err)
	}
	if q.Len() != 1 || q.Empty() {
		t.Fatalf("len after pop = %d", q.Len())
	}
}

func TestFeedbackAcceptsPermutation(t *testing.T) {
	q := New()
	in := tasks(5)
	q.BatchEnqueue(in)
	rev := []*model.Task{in[4], in[3], in[2], in[1], in[0]}
	if err := q.OnOptimizationFeedback(rev, 12.5); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	v := q.QueueView()
	if !sameOrder(v.Tasks, rev) || v.LastCost != 12.5 || v.Reorders != 1 {
		t.Fatalf("view = %+v", v)
	}
}

func TestFeedbackRejectsWithoutMutation(t *testing.T) {
	in := tasks(4)
	stranger := model.NewTask(2, 3)
	cases := []struct {
		name  string
		order []*model.Task
	}{
		{"short", in[:3]},
		{"long", append(append([]*model.Task(nil), in...), in[0])},
		{"duplicate", []*model.Task{in[0], in[0], in[2], in[3]}},
		{"foreign", []*model.Task{in[0], in[1], in[2], stranger}},
		{"nil entry", []*model.Task{in[0], in[1], nil, in[3]}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := New()
			q.BatchEnqueue(in)
			err := q.OnOptimizationFeedback(tc.order, 1)
			if !errors.Is(err, ErrNotPermutation) {
				t.Fatalf("want ErrNotPermutation, got %v", err)
			}
			if !sameOrder(q.TasksList(), in) {
				t.Fatalf("queue mutated: %v", ids(q.TasksList()))
			}
			if q.QueueView().Reorders != 0 {
				t.Fatalf("rejected reorder counted")
			}
		})
	}
	q := New()
	q.BatchEnqueue(in)
	var sm *SizeMismatchError
	if err := q.OnOptimizationFeedback(in[:1], 0); !errors.As(err, &sm) || sm.Have != 4 || sm.Got != 1 {
		t.Fatalf("size mismatch details: %v", err)
	}
}

func TestAdversarialShufflesPreserveMultiset(t *testing.T) {
	q := New()
	in := tasks(12)
	q.BatchEnqueue(in)
	rng := rand.New(rand.NewSource(3))
	want := map[string]bool{}
	for _, tk := range in {
		want[tk.ID] = true
	}
	for i := 0; i < 100; i++ {
		order := q.TasksList()
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		if rng.Intn(3) == 0 {
			// drop one and duplicate another
			order[0] = order[len(order)-1]
		}
		_ = q.OnOptimizationFeedback(order, 0)
		got := q.TasksList()
		if len(got) != len(in) {
			t.Fatalf("size changed to %d", len(got))
		}
		seen := map[string]bool{}
		for _, tk := range got {
			if !want[tk.ID] || seen[tk.ID] {
				t.Fatalf("membership changed at round %d", i)
			}
			seen[tk.ID] = true
		}
	}
}

func TestPopWaitsForOptimizationFence(t *testing.T) {
	q := New()
	in := tasks(2)
	q.BatchEnqueue(in)
	q.OnOptimizationStart()
	if !q.QueueView().Optimizing {
		t.Fatalf("view should report the fence")
	}

	popped := make(chan *model.Task, 1)
	go func() {
		tk, _ := q.PopTask()
		popped <- tk
	}()
	select {
	case <-popped:
		t.Fatalf("pop went through an in-flight reorder")
	case <-time.After(50 * time.Millisecond):
	}
	if err := q.OnOptimizationFeedback([]*model.Task{in[1], in[0]}, 0); err != nil {
		t.Fatal(err)
	}
	q.OnOptimizationFinished()
	select {
	case tk := <-popped:
		if tk.ID != in[1].ID {
			t.Fatalf("popped %s, want the reordered head %s", tk.ID, in[1].ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("pop never resumed")
	}
}

func TestPushFrontAndRemove(t *testing.T) {
	q := New()
	in := tasks(3)
	q.BatchEnqueue(in[1:])
	q.PushFront(in[0])
	if !sameOrder(q.TasksList(), in) {
		t.Fatalf("PushFront order %v", ids(q.TasksList()))
	}
	if _, ok := q.Remove(in[1].ID); !ok {
		t.Fatalf("Remove failed")
	}
	if _, ok := q.Remove("nope"); ok {
		t.Fatalf("Remove of unknown id succeeded")
	}
	if !sameOrder(q.TasksList(), []*model.Task{in[0], in[2]}) {
		t.Fatalf("after remove %v", ids(q.TasksList()))
	}
}

func TestArrivalsDuringFenceStayAtTail(t *testing.T) {
	q := New()
	in := tasks(3)
	q.BatchEnqueue(in[:2])
	snap := q.OnOptimizationStart()
	q.Enqueue(in[2])
	if !sameOrder(snap, in[:2]) {
		t.Fatalf("fence snapshot %v, want %v", ids(snap), ids(in[:2]))
	}
	if err := q.OnOptimizationFeedback([]*model.Task{snap[1], snap[0]}, 3); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	q.OnOptimizationFinished()
	want := []*model.Task{in[1], in[0], in[2]}
	if !sameOrder(q.TasksList(), want) {
		t.Fatalf("order %v, want %v", ids(q.TasksList()), ids(want))
	}
}
