package opt

import (
	"context"
	"math/rand"
	"testing"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

// abs distance on a number line
func lineDist(a, b graph.NodeID) float64 {
	d := float64(a) - float64(b)
	if d < 0 {
		return -d
	}
	return d
}

func isPermutation(a, b []*model.Task) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]int{}
	for _, t := range a {
		seen[t.ID]++
	}
	for _, t := range b {
		seen[t.ID]--
		if seen[t.ID] < 0 {
			return false
		}
	}
	return true
}

func scattered() []*model.Task {
	// a tour along the line visited in a bad order
	return []*model.Task{
		model.NewTask(0, 1),
		model.NewTask(8, 9),
		model.NewTask(2, 3),
		model.NewTask(6, 7),
		model.NewTask(4, 5),
	}
}

func TestSequenceCost(t *testing.T) {
	ts := scattered()
	// 1->8, 9->2, 3->6, 7->4
	if got := SequenceCost(ts, lineDist); got != 7+7+3+3 {
		t.Fatalf("SequenceCost = %v", got)
	}
}

func TestTwoOptNeverWorsens(t *testing.T) {
	ts := scattered()
	before := SequenceCost(ts, lineDist)
	out := TwoOpt{Dist: lineDist}.Reorder(context.Background(), ts, 10)
	if !isPermutation(ts, out) {
		t.Fatalf("not a permutation")
	}
	if after := SequenceCost(out, lineDist); after >= before {
		t.Fatalf("2-opt did not improve %v -> %v", before, after)
	}
}

func TestAnnealingFindsGoodOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var ts []*model.Task
	for i := 0; i < 10; i++ {
		ts = append(ts, model.NewTask(graph.NodeID(2*i), graph.NodeID(2*i+1)))
	}
	rng.Shuffle(len(ts), func(i, j int) { ts[i], ts[j] = ts[j], ts[i] })
	before := SequenceCost(ts, lineDist)

	a := NewAnnealing(lineDist, AnnealParams{}, 7)
	out := a.Reorder(context.Background(), ts, 5)
	if !isPermutation(ts, out) {
		t.Fatalf("not a permutation")
	}
	after := SequenceCost(out, lineDist)
	if after > before {
		t.Fatalf("annealing worsened %v -> %v", before, after)
	}
	m := a.LastMetrics()
	if m.Iterations == 0 || m.InitialCost != before || m.FinalCost != after {
		t.Fatalf("metrics = %+v (before %v after %v)", m, before, after)
	}
}

func TestAnnealingDeterministicForSeed(t *testing.T) {
	ts := scattered()
	a := NewAnnealing(lineDist, AnnealParams{}, 99).Reorder(context.Background(), ts, 3)
	b := NewAnnealing(lineDist, AnnealParams{}, 99).Reorder(context.Background(), ts, 3)
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("same seed, different orders")
		}
	}
}

func TestSequencersStopOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ts := scattered()
	for _, s := range []interface {
		Reorder(context.Context, []*model.Task, int) []*model.Task
	}{TwoOpt{Dist: lineDist}, NewAnnealing(lineDist, AnnealParams{}, 1), Identity{}} {
		if out := s.Reorder(ctx, ts, 100); !isPermutation(ts, out) {
			t.Fatalf("%T returned a non-permutation on cancel", s)
		}
	}
}

func TestGraphDistance(t *testing.T) {
	g := graph.New()
	_ = g.AddEdges(graph.Edge{From: 0, To: 1, Weight: 2.5})
	g.EnsureNode(2)
	d := GraphDistance(g)
	if d(0, 1) != 2.5 || d(1, 1) != 0 || d(0, 2) != Unreachable {
		t.Fatalf("distances %v %v %v", d(0, 1), d(1, 1), d(0, 2))
	}
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Record(Run{QueueLen: i})
	}
	runs := h.Runs()
	if len(runs) != 3 || runs[0].QueueLen != 2 || runs[2].QueueLen != 4 {
		t.Fatalf("runs = %+v", runs)
	}
}
