package opt

import (
	"sync"
	"time"
)

// Run records one OptimizeQueue call.
type Run struct {
	At        time.Time      `json:"at"`
	Sequencer string         `json:"sequencer"`
	QueueLen  int            `json:"queueLen"`
	Cost      float64        `json:"cost"`
	Took      time.Duration  `json:"took"`
	Result    string         `json:"result"`
	Error     string         `json:"error,omitempty"`
	Anneal    *AnnealMetrics `json:"anneal,omitempty"`
}

const defaultHistory = 64

// History keeps the most recent runs, oldest first.
type History struct {
	mu   sync.Mutex
	max  int
	runs []Run
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = defaultHistory
	}
	return &History{max: max}
}

func (h *History) Record(r Run) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, r)
	if over := len(h.runs) - h.max; over > 0 {
		h.runs = append(h.runs[:0:0], h.runs[over:]...)
	}
}

func (h *History) Runs() []Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Run(nil), h.runs...)
}

// Last returns the newest run.
func (h *History) Last() (Run, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.runs) == 0 {
		return Run{}, false
	}
	return h.runs[len(h.runs)-1], true
}
