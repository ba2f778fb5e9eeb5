// Package events fans fleet activity out to subscribers: an in-process
// broker for a single instance, and a Redis pub/sub broker for several.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic carries every fleet event.
const Topic = "fleet"

const (
	TaskQueued     = "task.queued"
	TaskDispatched = "task.dispatched"
	TaskCompleted  = "task.completed"
	TaskRequeued   = "task.requeued"
	TaskRejected   = "task.rejected"
	QueueOptimized = "queue.optimized"
)

type Event struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	TS   time.Time      `json:"ts"`
	Data map[string]any `json:"data,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ string, data map[string]any) Event {
	return Event{ID: uuid.New().String(), Type: typ, TS: time.Now().UTC(), Data: data}
}

type Broker interface {
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
	Publish(topic string, evt Event)
}

// Memory is an in-process Broker. Slow subscribers miss events rather than
// block publishers.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Memory) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan Event]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Memory) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Memory) Publish(topic string, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		select {
		case ch <- evt:
		default:
		}
	}
}
