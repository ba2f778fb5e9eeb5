// Package queue holds pending tasks in dispatch order. The order may be
// replaced wholesale by an optimization pass, but only by a permutation of
// what is already queued.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetnav/internal/model"
)

var (
	ErrEmpty          = errors.New("queue: empty")
	ErrNotPermutation = errors.New("queue: new order is not a permutation of the queued tasks")
)

// SizeMismatchError rejects a reorder whose length differs from the queue.
type SizeMismatchError struct {
	Have, Got int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("queue: reorder size mismatch, queued %d, got %d", e.Have, e.Got)
}

func (e *SizeMismatchError) Is(target error) bool { return target == ErrNotPermutation }

// View is a point-in-time copy of the queue.
type View struct {
	Tasks      []*model.Task `json:"tasks"`
	LastCost   float64       `json:"lastCost"`
	Reorders   int           `json:"reorders"`
	Optimizing bool          `json:"optimizing"`
}

// Queue is safe for concurrent use. While an optimization pass is in flight
// PopTask waits for it to finish so a pop never interleaves with a reorder.
type Queue struct {
	mu         sync.Mutex
	fence      *sync.Cond
	tasks      []*model.Task
	optimizing bool
	base       int
	lastCost   float64
	reorders   int
	now        func() time.Time
}

func New() *Queue {
	q := &Queue{now: time.Now}
	q.fence = sync.NewCond(&q.mu)
	return q
}

// TasksList returns the queued tasks front to back.
func (q *Queue) TasksList() []*model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*model.Task(nil), q.tasks...)
}

// NextTask returns the front task without removing it.
func (q *Queue) NextTask() (*model.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil, ErrEmpty
	}
	return q.tasks[0], nil
}

// PopTask removes and returns the front task.
func (q *Queue) PopTask() (*model.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.optimizing {
		q.fence.Wait()
	}
	if len(q.tasks) == 0 {
		return nil, ErrEmpty
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return t, nil
}

// Remove takes the task with the given id out of the queue wherever it sits.
func (q *Queue) Remove(id string) (*model.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.optimizing {
		q.fence.Wait()
	}
	for i, t := range q.tasks {
		if t.ID == id {
			q.tasks = append(q.tasks[:i:i], q.tasks[i+1:]...)
			return t, true
		}
	}
	return nil, false
}

func (q *Queue) Empty() bool { return q.Len() == 0 }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) Enqueue(t *model.Task) { q.BatchEnqueue([]*model.Task{t}) }

// BatchEnqueue appends tasks in the given order.
func (q *Queue) BatchEnqueue(tasks []*model.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if t.EnqueuedAt.IsZero() {
			t.EnqueuedAt = now
		}
		q.tasks = append(q.tasks, t)
	}
}

// PushFront puts a task back at the head, for work an executor refused.
func (q *Queue) PushFront(t *model.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.optimizing {
		q.fence.Wait()
	}
	q.tasks = append([]*model.Task{t}, q.tasks...)
}

// OnOptimizationStart fences the queue against pops until
// OnOptimizationFinished and returns the tasks the pass may reorder. Tasks
// enqueued while fenced land behind them.
func (q *Queue) OnOptimizationStart() []*model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.optimizing = true
	q.base = len(q.tasks)
	return append([]*model.Task(nil), q.tasks...)
}

func (q *Queue) OnOptimizationFinished() {
	q.mu.Lock()
	q.optimizing = false
	q.mu.Unlock()
	q.fence.Broadcast()
}

// OnOptimizationFeedback replaces the order with newOrder after checking it
// holds exactly the queued tasks. During a fenced pass only the tasks present
// at OnOptimizationStart are compared; later arrivals keep their place at the
// tail. On error the queue is left untouched.
func (q *Queue) OnOptimizationFeedback(newOrder []*model.Task, traversalCost float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	reordered := q.tasks
	if q.optimizing && q.base <= len(q.tasks) {
		reordered = q.tasks[:q.base]
	}
	if len(newOrder) != len(reordered) {
		return &SizeMismatchError{Have: len(reordered), Got: len(newOrder)}
	}
	count := make(map[string]int, len(reordered))
	for _, t := range reordered {
		count[t.ID]++
	}
	for _, t := range newOrder {
		if t == nil || count[t.ID] == 0 {
			return ErrNotPermutation
		}
		count[t.ID]--
	}
	tail := q.tasks[len(reordered):]
	q.tasks = append(append(make([]*model.Task, 0, len(q.tasks)), newOrder...), tail...)
	q.lastCost = traversalCost
	q.reorders++
	return nil
}

// QueueView snapshots the queue and its optimization bookkeeping.
func (q *Queue) QueueView() View {
	q.mu.Lock()
	defer q.mu.Unlock()
	return View{
		Tasks:      append([]*model.Task(nil), q.tasks...),
		LastCost:   q.lastCost,
		Reorders:   q.reorders,
		Optimizing: q.optimizing,
	}
}
