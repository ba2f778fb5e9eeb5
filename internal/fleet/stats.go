package fleet

import (
	"sync"

	"fleetnav/internal/opt"
)

// Stats accumulates how the fleet has spent its time. It is the traversal
// collaborator the optimizer reads.
type Stats struct {
	mu         sync.Mutex
	collisions int
	queue      float64
	penalty    float64
	transition float64
}

// Cost is the total driven plus time lost waiting on blocked segments.
func (s *Stats) Cost() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition + s.penalty
}

func (s *Stats) Statistics() opt.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return opt.Statistics{
		Collisions:       s.collisions,
		TimeInQueue:      s.queue,
		TimeInPenalty:    s.penalty,
		TimeInTransition: s.transition,
	}
}

func (s *Stats) addQueue(seconds float64) {
	s.mu.Lock()
	s.queue += seconds
	s.mu.Unlock()
}

func (s *Stats) addTransition(w float64) {
	s.mu.Lock()
	s.transition += w
	s.mu.Unlock()
}

// addPenalty counts a tick spent stopped; collision marks the first tick of
// a stop.
func (s *Stats) addPenalty(ticks float64, collision bool) {
	s.mu.Lock()
	s.penalty += ticks
	if collision {
		s.collisions++
	}
	s.mu.Unlock()
}
