// Package scheduler runs the two control loops of the fleet: the queue loop
// that optimizes and dispatches queued tasks, and the executor loop that
// refreshes executor state and services their movement requests.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"fleetnav/internal/events"
	"fleetnav/internal/fleet"
	"fleetnav/internal/graph"
	"fleetnav/internal/model"
	"fleetnav/internal/opt"
	"fleetnav/internal/queue"
	"fleetnav/internal/traffic"
)

var ErrAlreadyStarted = errors.New("scheduler: already started")

const (
	DefaultQueueInterval      = 500 * time.Millisecond
	DefaultExecutorInterval   = 250 * time.Millisecond
	DefaultOptimizeIterations = 10
)

// Optimizer reorders the queue before each dispatch pass.
type Optimizer interface {
	OptimizeQueue(ctx context.Context, iterations int) (opt.Result, error)
}

// Router is the part of the traffic controller the dispatcher needs.
type Router interface {
	RequestPath(src, dst graph.NodeID, owner traffic.Owner) (graph.Path, bool)
	ReservePath(p graph.Path, owner traffic.Owner) bool
	RevokePath(p graph.Path, owner traffic.Owner)
	LowestCost(src, dst graph.NodeID) (float64, bool)
	IsValidLocation(n graph.NodeID) bool
}

// Recorder persists dispatches and task status changes.
type Recorder interface {
	RecordDispatch(ctx context.Context, d model.Dispatch) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// Observer receives dispatch counts and the queue length after each pass.
type Observer interface {
	ObserveDispatch(n int)
	ObserveQueueLength(n int)
}

type Deps struct {
	Queue      *queue.Queue
	Optimizer  Optimizer
	Router     Router
	Pool       fleet.Pool
	Broker     events.Broker
	Recorder   Recorder
	Observer   Observer
	Logger     *slog.Logger
}

type Config struct {
	QueueInterval      time.Duration
	ExecutorInterval   time.Duration
	OptimizeIterations int
}

func (c Config) withDefaults() Config {
	if c.QueueInterval <= 0 {
		c.QueueInterval = DefaultQueueInterval
	}
	if c.ExecutorInterval <= 0 {
		c.ExecutorInterval = DefaultExecutorInterval
	}
	if c.OptimizeIterations <= 0 {
		c.OptimizeIterations = DefaultOptimizeIterations
	}
	return c
}

type Scheduler struct {
	d   Deps
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	running chan struct{}

	stopped atomic.Bool
	wg      sync.WaitGroup
	// dispatchMu serializes dispatch passes and lets Shutdown wait out one
	// already in flight.
	dispatchMu sync.Mutex

	faults    atomic.Int64
	sometimes rate.Sometimes
	reorders  atomic.Int64
}

func New(d Deps, cfg Config) *Scheduler {
	s := &Scheduler{
		d:         d,
		cfg:       cfg.withDefaults(),
		log:       d.Logger,
		running:   make(chan struct{}),
		sometimes: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Start launches both loops. They stop when ctx is cancelled or Shutdown is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	if s.stopped.Load() {
		return errors.New("scheduler: shut down")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.queueLoop(ctx)
	go s.executorLoop(ctx)
	close(s.running)
	s.log.Info("scheduler started", "queue_interval", s.cfg.QueueInterval, "executor_interval", s.cfg.ExecutorInterval)
	return nil
}

// Shutdown stops both loops and returns once they have exited and no
// dispatch pass is in flight. No task is dispatched after it returns.
func (s *Scheduler) Shutdown() {
	s.stopped.Store(true)
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.dispatchMu.Lock()
	s.dispatchMu.Unlock()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) queueLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.QueueInterval)
	defer ticker.Stop()
	for {
		if s.stopped.Load() {
			return
		}
		s.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) executorLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ExecutorInterval)
	defer ticker.Stop()
	for {
		if s.stopped.Load() {
			return
		}
		s.refreshExecutors()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// refreshExecutors never lets an executor fault escape into the loop.
func (s *Scheduler) refreshExecutors() {
	defer func() {
		if r := recover(); r != nil {
			s.fault("executor refresh panicked", fmt.Errorf("panic: %v", r))
		}
	}()
	if err := s.d.Pool.RefreshExecutors(); err != nil {
		s.fault("refresh executors", err)
	}
	if err := s.d.Pool.PerformRequests(); err != nil {
		s.fault("perform executor requests", err)
	}
}

func (s *Scheduler) fault(msg string, err error) {
	n := s.faults.Add(1)
	s.sometimes.Do(func() {
		s.log.Error(msg, "err", err, "faults", n)
	})
}

// Faults counts executor-loop failures since start.
func (s *Scheduler) Faults() int64 { return s.faults.Load() }

// RunCycle optimizes the queue and then dispatches. Optimization failures are
// logged and the dispatch still runs on the unchanged queue.
func (s *Scheduler) RunCycle(ctx context.Context) int {
	if s.d.Optimizer != nil {
		res, err := s.d.Optimizer.OptimizeQueue(ctx, s.cfg.OptimizeIterations)
		switch {
		case err != nil:
			s.log.Error("optimize queue", "err", err)
		case int64(res.Queue.Reorders) > s.reorders.Load():
			s.reorders.Store(int64(res.Queue.Reorders))
			s.publish(events.New(events.QueueOptimized, map[string]any{
				"tasks": len(res.Queue.Tasks), "cost": res.Queue.LastCost,
			}))
		}
	}
	return s.DispatchTasks(ctx)
}

// DispatchTasks hands queued tasks to idle executors, front of the queue
// first, and returns how many were dispatched. Tasks with no route at all are
// rejected, and tasks no idle executor can reach are passed over. The pass
// stops at the first task whose route is blocked by reservations; that task
// keeps its place.
func (s *Scheduler) DispatchTasks(ctx context.Context) int {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	n := 0
	free := s.d.Pool.FreeExecutorsNumber()
	for _, task := range s.d.Queue.TasksList() {
		if n >= free || s.stopped.Load() || ctx.Err() != nil {
			break
		}
		ok, again := s.dispatchOne(ctx, task)
		if ok {
			n++
		}
		if !again {
			break
		}
	}
	if s.d.Observer != nil {
		s.d.Observer.ObserveDispatch(n)
		s.d.Observer.ObserveQueueLength(s.d.Queue.Len())
	}
	return n
}

// dispatchOne tries a single queued task. again reports whether the pass
// should move on to the next task.
func (s *Scheduler) dispatchOne(ctx context.Context, task *model.Task) (ok, again bool) {
	if reason := s.unroutable(task); reason != "" {
		s.reject(ctx, task, reason)
		return false, true
	}

	ex, found := s.d.Pool.ClosestFreeExecutor(task)
	if !found {
		if s.d.Pool.FreeExecutorsNumber() == 0 {
			return false, false
		}
		s.log.Debug("no idle executor reaches the source, task passed over", "task", task.ID, "src", task.Source)
		return false, true
	}
	owner := traffic.Owner(ex.ID())
	path, granted := s.route(task, owner)
	if !granted {
		s.log.Debug("no free path, task stays queued", "task", task.ID, "src", task.Source, "dst", task.Destination)
		return false, false
	}

	taken, found := s.take(task)
	if !found {
		// requeued or removed since the pass started
		s.d.Router.RevokePath(path, owner)
		return false, true
	}

	if err := ex.ExecuteJob(ctx, taken, path); err != nil {
		s.d.Router.RevokePath(path, owner)
		s.d.Queue.PushFront(taken)
		s.log.Warn("executor refused task", "task", taken.ID, "executor", ex.ID(), "err", err)
		s.publish(events.New(events.TaskRequeued, map[string]any{"taskId": taken.ID, "executorId": ex.ID()}))
		return false, false
	}

	d := model.Dispatch{TaskID: taken.ID, ExecutorID: ex.ID(), Path: path, DispatchedAt: time.Now().UTC()}
	if s.d.Recorder != nil {
		if err := s.d.Recorder.RecordDispatch(ctx, d); err != nil {
			s.log.Error("record dispatch", "task", d.TaskID, "err", err)
		}
	}
	s.log.Info("task dispatched", "task", d.TaskID, "executor", d.ExecutorID, "path", path.String())
	s.publish(events.New(events.TaskDispatched, map[string]any{
		"taskId": d.TaskID, "executorId": d.ExecutorID, "path": path,
	}))
	return true, true
}

// route reserves the path the optimizer attached to the task when it is still
// usable, and otherwise asks the controller to choose one.
func (s *Scheduler) route(t *model.Task, owner traffic.Owner) (graph.Path, bool) {
	if p := t.Path; len(p) >= 2 && p[0] == t.Source && p[len(p)-1] == t.Destination {
		if s.d.Router.ReservePath(p, owner) {
			return p.Clone(), true
		}
	}
	return s.d.Router.RequestPath(t.Source, t.Destination, owner)
}

// take removes t from the queue, popping it when it is at the head.
func (s *Scheduler) take(t *model.Task) (*model.Task, bool) {
	if head, err := s.d.Queue.NextTask(); err == nil && head.ID == t.ID {
		popped, err := s.d.Queue.PopTask()
		if err != nil {
			return nil, false
		}
		if popped.ID != t.ID {
			// the head moved between peek and pop
			s.d.Queue.PushFront(popped)
			return nil, false
		}
		return popped, true
	}
	return s.d.Queue.Remove(t.ID)
}

func (s *Scheduler) reject(ctx context.Context, task *model.Task, reason string) {
	t, removed := s.d.Queue.Remove(task.ID)
	if !removed {
		return
	}
	s.log.Warn("task rejected", "task", t.ID, "reason", reason)
	if s.d.Recorder != nil {
		if err := s.d.Recorder.UpdateStatus(ctx, t.ID, model.StatusRejected); err != nil {
			s.log.Error("record rejection", "task", t.ID, "err", err)
		}
	}
	s.publish(events.New(events.TaskRejected, map[string]any{"taskId": t.ID, "reason": reason}))
}

func (s *Scheduler) unroutable(t *model.Task) string {
	switch {
	case !s.d.Router.IsValidLocation(t.Source):
		return "unknown source"
	case !s.d.Router.IsValidLocation(t.Destination):
		return "unknown destination"
	case t.Source == t.Destination:
		return "source equals destination"
	}
	if _, ok := s.d.Router.LowestCost(t.Source, t.Destination); !ok {
		return "no route"
	}
	return ""
}

func (s *Scheduler) publish(evt events.Event) {
	if s.d.Broker != nil {
		s.d.Broker.Publish(events.Topic, evt)
	}
}

// WaitForQueueProcessed blocks until the loops are running, the queue is
// empty and every online executor is idle.
func (s *Scheduler) WaitForQueueProcessed(ctx context.Context) error {
	select {
	case <-s.running:
	case <-ctx.Done():
		return ctx.Err()
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.drained() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drained is checked between dispatch passes so a task popped but not yet
// handed over is never missed.
func (s *Scheduler) drained() bool {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.d.Queue.Empty() && s.d.Pool.FreeExecutorsNumber() == s.d.Pool.OnlineExecutorsNumber()
}
