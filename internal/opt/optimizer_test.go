package opt

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
	"fleetnav/internal/oracle"
	"fleetnav/internal/queue"
)

type idle int

func (n idle) FreeExecutorsNumber() int { return int(n) }

type fixedTraverser struct {
	cost  float64
	stats Statistics
}

func (f fixedTraverser) Cost() float64          { return f.cost }
func (f fixedTraverser) Statistics() Statistics { return f.stats }

type reverser struct{}

func (reverser) Reorder(_ context.Context, ts []*model.Task, _ int) []*model.Task {
	out := make([]*model.Task, len(ts))
	for i, t := range ts {
		out[len(ts)-1-i] = t
	}
	return out
}

type dropper struct{}

func (dropper) Reorder(_ context.Context, ts []*model.Task, _ int) []*model.Task {
	return ts[1:]
}

// shuffles, and sometimes swaps a task for a duplicate
type adversary struct{ rng *rand.Rand }

func (a adversary) Reorder(_ context.Context, ts []*model.Task, _ int) []*model.Task {
	out := append([]*model.Task(nil), ts...)
	a.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if a.rng.Intn(2) == 0 {
		out[0] = out[len(out)-1]
	}
	return out
}

func line(t *testing.T, n int) *graph.Graph {
	t.Helper()
	g := graph.New()
	for i := 0; i < n-1; i++ {
		if err := g.AddUndirectedEdge(graph.NodeID(i), graph.NodeID(i+1), 1); err != nil {
			t.Fatal(err)
		}
	}
	return g
}

func enqueue(q *queue.Queue, pairs ...[2]graph.NodeID) []*model.Task {
	var ts []*model.Task
	for _, p := range pairs {
		ts = append(ts, model.NewTask(p[0], p[1]))
	}
	q.BatchEnqueue(ts)
	return ts
}

func idsOf(ts []*model.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func TestOptimizeSkipsWithoutExecutors(t *testing.T) {
	g := line(t, 4)
	q := queue.New()
	in := enqueue(q, [2]graph.NodeID{0, 3}, [2]graph.NodeID{3, 0})
	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(0), Sequencer: reverser{},
		Traverser: fixedTraverser{stats: Statistics{Collisions: 2}}})
	res, err := o.OptimizeQueue(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Queue.Tasks[0].ID != in[0].ID || res.Queue.Reorders != 0 {
		t.Fatalf("queue changed without executors")
	}
	if res.Statistics.Collisions != 2 {
		t.Fatalf("statistics not passed through: %+v", res.Statistics)
	}
	if r, _ := o.History().Last(); r.Result != "skipped" {
		t.Fatalf("history result %q", r.Result)
	}
}

func TestOptimizeAppliesOrderAndPaths(t *testing.T) {
	g := line(t, 4)
	q := queue.New()
	in := enqueue(q, [2]graph.NodeID{0, 3}, [2]graph.NodeID{1, 2}, [2]graph.NodeID{3, 0})
	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(1), Sequencer: reverser{}})
	res, err := o.OptimizeQueue(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	got := res.Queue.Tasks
	if got[0].ID != in[2].ID || got[2].ID != in[0].ID {
		t.Fatalf("order not applied: %v", idsOf(got))
	}
	for _, tk := range got {
		if len(tk.Path) == 0 || tk.Path[0] != tk.Source || tk.Path[len(tk.Path)-1] != tk.Destination {
			t.Fatalf("task %s got path %v", tk.ID, tk.Path)
		}
	}
	// routes go on copies; the originals are untouched
	if in[0].Path != nil {
		t.Fatalf("optimizer mutated the enqueued task")
	}
	if res.Queue.LastCost != 3+1+3 || res.Queue.Optimizing {
		t.Fatalf("view = %+v", res.Queue)
	}
}

func TestOptimizeUsesCosterThenFallsBack(t *testing.T) {
	g := graph.New()
	_ = g.AddEdges(graph.Edge{From: 0, To: 1, Weight: 1}, graph.Edge{From: 1, To: 3, Weight: 1},
		graph.Edge{From: 0, To: 2, Weight: 2}, graph.Edge{From: 2, To: 3, Weight: 2})
	q := queue.New()
	enqueue(q, [2]graph.NodeID{0, 3})
	prefersLong := oracle.CosterFunc(func(p graph.Path) (float64, bool) {
		if p[1] == 2 {
			return 0.5, true
		}
		return 10, true
	})
	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(1), Coster: prefersLong})
	res, err := o.OptimizeQueue(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if tk := res.Queue.Tasks[0]; tk.Path[1] != 2 || tk.Cost != 0.5 {
		t.Fatalf("coster ignored: %v %v", tk.Path, tk.Cost)
	}

	o = NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(1), Coster: oracle.Declining{}})
	res, err = o.OptimizeQueue(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if tk := res.Queue.Tasks[0]; tk.Path[1] != 1 || tk.Cost != 2 {
		t.Fatalf("fallback should pick the cheapest route, got %v %v", tk.Path, tk.Cost)
	}
}

func TestOptimizeAbortsOnSizeMismatch(t *testing.T) {
	g := line(t, 3)
	q := queue.New()
	in := enqueue(q, [2]graph.NodeID{0, 1}, [2]graph.NodeID{1, 2}, [2]graph.NodeID{2, 0})
	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(2), Sequencer: dropper{}})
	_, err := o.OptimizeQueue(context.Background(), 1)
	if !errors.Is(err, ErrQueueCorrupted) {
		t.Fatalf("want ErrQueueCorrupted, got %v", err)
	}
	v := q.QueueView()
	if len(v.Tasks) != 3 || v.Tasks[0].ID != in[0].ID || v.Reorders != 0 {
		t.Fatalf("queue touched by aborted pass: %+v", v)
	}
	if v.Optimizing {
		t.Fatalf("fence left up after abort")
	}
	if r, _ := o.History().Last(); r.Result != "corrupted" || r.Error == "" {
		t.Fatalf("history = %+v", r)
	}
}

func TestOptimizeAdversarialSequencerKeepsMultiset(t *testing.T) {
	g := graph.Grid(3, 3, 1)
	q := queue.New()
	rng := rand.New(rand.NewSource(11))
	var in []*model.Task
	for i := 0; i < 8; i++ {
		in = append(in, model.NewTask(graph.NodeID(rng.Intn(9)), graph.NodeID(rng.Intn(9))))
	}
	q.BatchEnqueue(in)
	want := idsOf(in)
	sort.Strings(want)

	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(1), Sequencer: adversary{rng}})
	for i := 0; i < 50; i++ {
		_, _ = o.OptimizeQueue(context.Background(), 1)
		got := idsOf(q.TasksList())
		sort.Strings(got)
		if len(got) != len(want) {
			t.Fatalf("round %d: size %d", i, len(got))
		}
		for j := range got {
			if got[j] != want[j] {
				t.Fatalf("round %d: membership changed", i)
			}
		}
	}
}

func TestOptimizeTraverserCostFedBack(t *testing.T) {
	g := line(t, 3)
	q := queue.New()
	enqueue(q, [2]graph.NodeID{0, 2}, [2]graph.NodeID{2, 0})
	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(1), Traverser: fixedTraverser{cost: 42}})
	res, err := o.OptimizeQueue(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Queue.LastCost != 42 {
		t.Fatalf("LastCost = %v", res.Queue.LastCost)
	}
}

type recorder struct{ results []string }

func (r *recorder) ObserveOptimization(result string, _ time.Duration, _ int) {
	r.results = append(r.results, result)
}

func TestOptimizeReportsOutcomes(t *testing.T) {
	g := line(t, 3)
	q := queue.New()
	rec := &recorder{}
	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(1), Observer: rec})
	_, _ = o.OptimizeQueue(context.Background(), 1)
	enqueue(q, [2]graph.NodeID{0, 2})
	_, _ = o.OptimizeQueue(context.Background(), 1)
	if len(rec.results) != 2 || rec.results[0] != "noop" || rec.results[1] != "applied" {
		t.Fatalf("results = %v", rec.results)
	}
}

func TestNewSequencer(t *testing.T) {
	g := line(t, 3)
	for _, name := range []string{"identity", "2opt", "anneal"} {
		s, err := NewSequencer(name, g, 1)
		if err != nil {
			t.Fatal(err)
		}
		if SequencerName(s) != name {
			t.Fatalf("name %q round-tripped to %q", name, SequencerName(s))
		}
	}
	if _, err := NewSequencer("genetic", g, 1); err == nil {
		t.Fatalf("unknown sequencer accepted")
	}
}

// enqueues a late arrival while the pass is fenced
type arriving struct {
	q    *queue.Queue
	late *model.Task
}

func (a arriving) Reorder(ctx context.Context, ts []*model.Task, n int) []*model.Task {
	a.q.Enqueue(a.late)
	return reverser{}.Reorder(ctx, ts, n)
}

func TestOptimizeArrivalDuringPassKeepsTail(t *testing.T) {
	g := line(t, 4)
	q := queue.New()
	in := enqueue(q, [2]graph.NodeID{0, 3}, [2]graph.NodeID{3, 0})
	late := model.NewTask(1, 2)
	o := NewOptimizer(Deps{Graph: g, Queue: q, Executors: idle(1), Sequencer: arriving{q: q, late: late}})
	res, err := o.OptimizeQueue(context.Background(), 1)
	if err != nil {
		t.Fatalf("arrival aborted the pass: %v", err)
	}
	got := idsOf(res.Queue.Tasks)
	want := []string{in[1].ID, in[0].ID, late.ID}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("order %v, want %v", got, want)
	}
}
