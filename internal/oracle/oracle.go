// Package oracle declares the pluggable decision functions the core consults
// without knowing how they decide.
package oracle

import (
	"context"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

// PathScorer ranks a candidate path; higher scores win. ok=false means the
// scorer has no opinion about the path.
type PathScorer interface {
	Score(p graph.Path) (score float64, ok bool)
}

// PathCoster estimates the cost of running a path; lower wins. ok=false
// means no opinion.
type PathCoster interface {
	Cost(p graph.Path) (cost float64, ok bool)
}

// Sequencer proposes a new order for the queued tasks. budget bounds the
// effort spent. Implementations must return a permutation of tasks.
type Sequencer interface {
	Reorder(ctx context.Context, tasks []*model.Task, budget int) []*model.Task
}

// ScorerFunc adapts a function to PathScorer.
type ScorerFunc func(graph.Path) (float64, bool)

func (f ScorerFunc) Score(p graph.Path) (float64, bool) { return f(p) }

// CosterFunc adapts a function to PathCoster.
type CosterFunc func(graph.Path) (float64, bool)

func (f CosterFunc) Cost(p graph.Path) (float64, bool) { return f(p) }

// Declining never has an opinion. It forces callers onto their fallbacks.
type Declining struct{}

func (Declining) Score(graph.Path) (float64, bool) { return 0, false }
func (Declining) Cost(graph.Path) (float64, bool)  { return 0, false }

// GraphCost scores paths by their traversal cost on G: Cost returns the sum
// of edge weights and Score its negation, so cheaper paths rank higher.
type GraphCost struct {
	G *graph.Graph
}

func (c GraphCost) Cost(p graph.Path) (float64, bool) { return c.G.PathCost(p) }

func (c GraphCost) Score(p graph.Path) (float64, bool) {
	v, ok := c.G.PathCost(p)
	return -v, ok
}

// Ranked returns the indexes of paths the scorer has an opinion on, best
// first. Ties keep input order.
func Ranked(paths []graph.Path, s PathScorer) []int {
	if s == nil {
		return nil
	}
	type scored struct {
		idx   int
		score float64
	}
	var out []scored
	for i, p := range paths {
		if v, ok := s.Score(p); ok {
			out = append(out, scored{i, v})
		}
	}
	// insertion sort keeps ties stable and candidate lists are tiny
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].score > out[j-1].score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	idx := make([]int, len(out))
	for i, s := range out {
		idx[i] = s.idx
	}
	return idx
}

// Cheapest returns the index of the lowest-cost path the coster has an
// opinion on, or -1.
func Cheapest(paths []graph.Path, c PathCoster) int {
	best, bestCost := -1, 0.0
	if c == nil {
		return best
	}
	for i, p := range paths {
		v, ok := c.Cost(p)
		if !ok {
			continue
		}
		if best == -1 || v < bestCost {
			best, bestCost = i, v
		}
	}
	return best
}
