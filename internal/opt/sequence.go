package opt

import (
	"context"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

// Unreachable is the deadhead charged between two tasks with no route
// between them.
const Unreachable = 1e6

// Distance is the cost of driving empty from one node to another.
type Distance func(from, to graph.NodeID) float64

// GraphDistance measures deadhead on g by shortest path.
func GraphDistance(g *graph.Graph) Distance {
	return func(from, to graph.NodeID) float64 {
		if from == to {
			return 0
		}
		if _, c, ok := g.ShortestPath(from, to); ok {
			return c
		}
		return Unreachable
	}
}

// deadheads[i][j] is the empty run from the end of task i to the start of
// task j. Computed once per reorder so the search loops stay cheap.
func deadheads(tasks []*model.Task, dist Distance) [][]float64 {
	m := make([][]float64, len(tasks))
	for i, a := range tasks {
		m[i] = make([]float64, len(tasks))
		for j, b := range tasks {
			if i != j {
				m[i][j] = dist(a.Destination, b.Source)
			}
		}
	}
	return m
}

func orderCost(m [][]float64, order []int) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		total += m[order[i]][order[i+1]]
	}
	return total
}

// SequenceCost is the total deadhead of serving tasks in the given order.
func SequenceCost(tasks []*model.Task, dist Distance) float64 {
	total := 0.0
	for i := 0; i < len(tasks)-1; i++ {
		total += dist(tasks[i].Destination, tasks[i+1].Source)
	}
	return total
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func pick(tasks []*model.Task, order []int) []*model.Task {
	out := make([]*model.Task, len(order))
	for i, idx := range order {
		out[i] = tasks[idx]
	}
	return out
}

// Identity keeps the queue as it is.
type Identity struct{}

func (Identity) Reorder(_ context.Context, tasks []*model.Task, _ int) []*model.Task {
	return append([]*model.Task(nil), tasks...)
}

// TwoOpt reverses runs of the queue while that shortens total deadhead.
// budget caps the number of full improvement sweeps.
type TwoOpt struct {
	Dist Distance
}

func (s TwoOpt) Reorder(ctx context.Context, tasks []*model.Task, budget int) []*model.Task {
	if len(tasks) < 3 || s.Dist == nil {
		return append([]*model.Task(nil), tasks...)
	}
	m := deadheads(tasks, s.Dist)
	return pick(tasks, improve2Opt(ctx, m, identity(len(tasks)), budget))
}

func improve2Opt(ctx context.Context, m [][]float64, order []int, iterations int) []int {
	if iterations <= 0 {
		iterations = 1
	}
	best := append([]int(nil), order...)
	bestCost := orderCost(m, best)
	n := len(order)
	for it := 0; it < iterations; it++ {
		if ctx.Err() != nil {
			break
		}
		improved := false
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				cand := twoOptSwap(best, i, k)
				if c := orderCost(m, cand); c+1e-9 < bestCost {
					best = cand
					bestCost = c
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
