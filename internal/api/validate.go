package api

import (
	"fmt"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

const (
	maxBatch = 1000
	maxK     = 10
)

func validateTasks(g *graph.Graph, in []model.TaskIn) error {
	if len(in) == 0 {
		return fmt.Errorf("tasks must not be empty")
	}
	if len(in) > maxBatch {
		return fmt.Errorf("at most %d tasks per request", maxBatch)
	}
	for i, t := range in {
		if t.Source == t.Destination {
			return fmt.Errorf("tasks[%d]: source equals destination", i)
		}
		if !g.HasNode(t.Source) {
			return fmt.Errorf("tasks[%d]: unknown source %d", i, t.Source)
		}
		if !g.HasNode(t.Destination) {
			return fmt.Errorf("tasks[%d]: unknown destination %d", i, t.Destination)
		}
	}
	return nil
}

func validateEdges(in []graph.Edge) error {
	if len(in) == 0 {
		return fmt.Errorf("edges must not be empty")
	}
	if len(in) > maxBatch {
		return fmt.Errorf("at most %d edges per request", maxBatch)
	}
	for i, e := range in {
		if e.From == e.To {
			return fmt.Errorf("edges[%d]: self loop on %d", i, e.From)
		}
		if e.Weight < 0 {
			return fmt.Errorf("edges[%d]: weight must be >= 0", i)
		}
	}
	return nil
}
