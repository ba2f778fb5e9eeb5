// Package opt improves the order of the task queue and attaches a route to
// each queued task. It never adds or drops tasks: a reorder that does not
// hand back exactly what it was given aborts the pass.
package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
	"fleetnav/internal/oracle"
	"fleetnav/internal/queue"
)

// ErrQueueCorrupted means the sequencer returned a different number of tasks
// than it was given.
var ErrQueueCorrupted = errors.New("opt: reordered queue does not match the original")

const defaultCandidates = 3

// PathSource is the part of the route graph the optimizer needs.
type PathSource interface {
	KShortestPaths(src, dst graph.NodeID, k int) []graph.Path
	PathCost(p graph.Path) (float64, bool)
}

// ExecutorCounter tells the optimizer whether anyone is idle to take work.
type ExecutorCounter interface {
	FreeExecutorsNumber() int
}

// Observer receives one outcome per pass: "skipped", "noop", "applied",
// "corrupted" or "rejected".
type Observer interface {
	ObserveOptimization(result string, took time.Duration, queueLen int)
}

// Result is the queue after a pass plus the fleet statistics at that moment.
type Result struct {
	Queue      queue.View `json:"queue"`
	Statistics Statistics `json:"statistics"`
}

type Deps struct {
	Graph     PathSource
	Queue     *queue.Queue
	Executors ExecutorCounter
	Sequencer oracle.Sequencer
	// Coster picks among candidate routes. Nil means graph cost.
	Coster oracle.PathCoster
	// Traverser supplies the aggregate cost fed back to the queue. Nil means
	// the sum of the attached route costs.
	Traverser  Traverser
	Candidates int
	Logger     *slog.Logger
	Observer   Observer
	History    *History
}

type Optimizer struct {
	g          PathSource
	q          *queue.Queue
	execs      ExecutorCounter
	seq        oracle.Sequencer
	seqName    string
	coster     oracle.PathCoster
	trav       Traverser
	candidates int
	log        *slog.Logger
	obs        Observer
	hist       *History
}

func NewOptimizer(d Deps) *Optimizer {
	o := &Optimizer{
		g:          d.Graph,
		q:          d.Queue,
		execs:      d.Executors,
		seq:        d.Sequencer,
		coster:     d.Coster,
		trav:       d.Traverser,
		candidates: d.Candidates,
		log:        d.Logger,
		obs:        d.Observer,
		hist:       d.History,
	}
	if o.seq == nil {
		o.seq = Identity{}
	}
	o.seqName = SequencerName(o.seq)
	if o.candidates <= 0 {
		o.candidates = defaultCandidates
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.hist == nil {
		o.hist = NewHistory(0)
	}
	return o
}

// History returns the log of past passes.
func (o *Optimizer) History() *History { return o.hist }

// OptimizeQueue runs one pass. With no executor idle it only reports the
// current queue. Otherwise it fences the queue, asks the sequencer for a new
// order, attaches the cheapest candidate route to every task and commits the
// order. Pops wait for the whole pass.
func (o *Optimizer) OptimizeQueue(ctx context.Context, iterations int) (Result, error) {
	start := time.Now()
	stats := o.statistics()
	if o.execs == nil || o.execs.FreeExecutorsNumber() <= 0 {
		o.finish(start, "skipped", o.q.Len(), 0, nil)
		return Result{Queue: o.q.QueueView(), Statistics: stats}, nil
	}

	snapshot := o.q.OnOptimizationStart()
	cost, n, result, err := o.reorder(ctx, snapshot, iterations)
	o.q.OnOptimizationFinished()

	o.finish(start, result, n, cost, err)
	if err != nil {
		return Result{}, err
	}
	return Result{Queue: o.q.QueueView(), Statistics: o.statistics()}, nil
}

func (o *Optimizer) reorder(ctx context.Context, snapshot []*model.Task, iterations int) (float64, int, string, error) {
	n := len(snapshot)
	if n == 0 {
		return 0, 0, "noop", nil
	}

	order := snapshot
	if n > 1 {
		order = o.seq.Reorder(ctx, append([]*model.Task(nil), snapshot...), iterations)
	}
	if len(order) != n {
		return 0, n, "corrupted", fmt.Errorf("%w: had %d tasks, sequencer returned %d", ErrQueueCorrupted, n, len(order))
	}

	// attach routes to copies; the queued tasks may be read concurrently
	routed := make([]*model.Task, n)
	total := 0.0
	for i, t := range order {
		if t == nil {
			return 0, n, "corrupted", fmt.Errorf("%w: nil task at %d", ErrQueueCorrupted, i)
		}
		c := t.Clone()
		if p, pc, ok := o.bestPath(c.Source, c.Destination); ok {
			c.SetOptimizedPath(p, pc)
			total += pc
		}
		routed[i] = c
	}
	if o.trav != nil {
		total = o.trav.Cost()
	}
	if err := o.q.OnOptimizationFeedback(routed, total); err != nil {
		return 0, n, "rejected", fmt.Errorf("opt: commit reorder: %w", err)
	}
	return total, n, "applied", nil
}

// bestPath asks the coster to choose among the k cheapest routes and falls
// back to graph cost when it declines every one of them.
func (o *Optimizer) bestPath(src, dst graph.NodeID) (graph.Path, float64, bool) {
	paths := o.g.KShortestPaths(src, dst, o.candidates)
	if len(paths) == 0 {
		return nil, 0, false
	}
	if o.coster != nil {
		if i := oracle.Cheapest(paths, o.coster); i >= 0 {
			c, _ := o.coster.Cost(paths[i])
			return paths[i], c, true
		}
	}
	c, ok := o.g.PathCost(paths[0])
	return paths[0], c, ok
}

func (o *Optimizer) statistics() Statistics {
	if o.trav == nil {
		return Statistics{}
	}
	return o.trav.Statistics()
}

func (o *Optimizer) finish(start time.Time, result string, n int, cost float64, err error) {
	took := time.Since(start)
	run := Run{At: start, Sequencer: o.seqName, QueueLen: n, Cost: cost, Took: took, Result: result}
	if err != nil {
		run.Error = err.Error()
		o.log.Error("queue optimization failed", "result", result, "queue", n, "err", err)
	} else if result == "applied" {
		o.log.Debug("queue optimized", "queue", n, "cost", cost, "took", took)
	}
	if a, ok := o.seq.(*Annealing); ok && result == "applied" && n > 1 {
		m := a.LastMetrics()
		run.Anneal = &m
	}
	o.hist.Record(run)
	if o.obs != nil {
		o.obs.ObserveOptimization(result, took, n)
	}
}

// SequencerName labels a sequencer in logs and run history.
func SequencerName(s oracle.Sequencer) string {
	switch s.(type) {
	case Identity, *Identity:
		return "identity"
	case TwoOpt, *TwoOpt:
		return "2opt"
	case *Annealing:
		return "anneal"
	default:
		return fmt.Sprintf("%T", s)
	}
}

// NewSequencer builds a sequencer by name: "identity", "2opt" or "anneal".
func NewSequencer(name string, g *graph.Graph, seed int64) (oracle.Sequencer, error) {
	switch name {
	case "", "identity":
		return Identity{}, nil
	case "2opt":
		return TwoOpt{Dist: GraphDistance(g)}, nil
	case "anneal":
		return NewAnnealing(GraphDistance(g), AnnealParams{}, seed), nil
	default:
		return nil, fmt.Errorf("opt: unknown sequencer %q", name)
	}
}
