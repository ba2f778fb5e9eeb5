package opt

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"fleetnav/internal/model"
)

// AnnealMetrics describes one annealing run.
type AnnealMetrics struct {
	Iterations    int     `json:"iterations"`
	Improvements  int     `json:"improvements"`
	AcceptedWorse int     `json:"acceptedWorse"`
	InitialCost   float64 `json:"initialCost"`
	BestCost      float64 `json:"bestCost"`
	FinalCost     float64 `json:"finalCost"`
}

// AnnealParams tunes the search. Zero values take defaults.
type AnnealParams struct {
	InitialTemp float64
	Cooling     float64
	// MovesPerTask scales the iteration count: budget * MovesPerTask * len(tasks).
	MovesPerTask int
}

// Annealing reorders the queue by simulated annealing over swap and
// relocate moves, finishing with a 2-opt polish of the best order found.
type Annealing struct {
	Dist   Distance
	Params AnnealParams

	mu   sync.Mutex
	rng  *rand.Rand
	last AnnealMetrics
}

// NewAnnealing seeds the search; seed 0 uses the clock.
func NewAnnealing(dist Distance, p AnnealParams, seed int64) *Annealing {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Annealing{Dist: dist, Params: p, rng: rand.New(rand.NewSource(seed))}
}

func (a *Annealing) Reorder(ctx context.Context, tasks []*model.Task, budget int) []*model.Task {
	if len(tasks) < 2 || a.Dist == nil {
		return append([]*model.Task(nil), tasks...)
	}
	m := deadheads(tasks, a.Dist)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	order, met := anneal(ctx, m, identity(len(tasks)), budget, a.Params, a.rng)
	a.last = met
	return pick(tasks, order)
}

// LastMetrics reports the most recent run.
func (a *Annealing) LastMetrics() AnnealMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func anneal(ctx context.Context, m [][]float64, start []int, budget int, p AnnealParams, rng *rand.Rand) ([]int, AnnealMetrics) {
	temp := 1.0
	if p.InitialTemp > 0 {
		temp = p.InitialTemp
	}
	cool := 0.995
	if p.Cooling > 0 && p.Cooling < 1 {
		cool = p.Cooling
	}
	moves := 20
	if p.MovesPerTask > 0 {
		moves = p.MovesPerTask
	}
	if budget <= 0 {
		budget = 1
	}
	n := len(start)
	limit := budget * moves * n

	curr := append([]int(nil), start...)
	currCost := orderCost(m, curr)
	best := append([]int(nil), curr...)
	bestCost := currCost
	met := AnnealMetrics{InitialCost: currCost, BestCost: bestCost}

	for met.Iterations < limit {
		if ctx.Err() != nil {
			break
		}
		met.Iterations++
		cand := neighbour(curr, rng)
		c := orderCost(m, cand)
		delta := c - currCost
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			if delta >= 0 {
				met.AcceptedWorse++
			}
			curr, currCost = cand, c
			if c+1e-9 < bestCost {
				best = append(best[:0], cand...)
				bestCost = c
				met.Improvements++
			}
		}
		temp *= cool
	}
	best = improve2Opt(ctx, m, best, budget)
	met.BestCost = orderCost(m, best)
	met.FinalCost = met.BestCost
	return best, met
}

// neighbour applies either a swap of two positions or a relocation of one.
func neighbour(order []int, rng *rand.Rand) []int {
	out := append([]int(nil), order...)
	n := len(out)
	i, j := rng.Intn(n), rng.Intn(n)
	for i == j && n > 1 {
		j = rng.Intn(n)
	}
	if rng.Intn(2) == 0 {
		out[i], out[j] = out[j], out[i]
		return out
	}
	v := out[i]
	out = append(out[:i], out[i+1:]...)
	out = append(out[:j], append([]int{v}, out[j:]...)...)
	return out
}
