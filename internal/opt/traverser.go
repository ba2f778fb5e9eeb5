package opt

// Statistics summarizes how the fleet has been moving.
type Statistics struct {
	Collisions       int     `json:"collisions"`
	TimeInQueue      float64 `json:"timeInQueue"`
	TimeInPenalty    float64 `json:"timeInPenalty"`
	TimeInTransition float64 `json:"timeInTransition"`
}

// Traverser reports the cost and statistics of driving the current plan.
type Traverser interface {
	Cost() float64
	Statistics() Statistics
}
