package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
	"fleetnav/internal/traffic"
)

// Router measures the empty run from a vehicle to a task.
type Router interface {
	ShortestPath(src, dst graph.NodeID) (graph.Path, float64, bool)
	EdgeWeight(a, b graph.NodeID) (float64, bool)
}

// Segments is the part of the traffic controller vehicles talk to.
type Segments interface {
	RequestNextSegment(p graph.Path, owner traffic.Owner, startingPoint int) bool
	RevokePath(p graph.Path, owner traffic.Owner)
}

type Options struct {
	// HeartbeatTimeout takes a vehicle offline when it has not been heard
	// from for this long. Zero disables the check.
	HeartbeatTimeout time.Duration
	// Simulated vehicles heartbeat on every PerformRequests call.
	Simulated bool
	// Requeue receives tasks abandoned by a vehicle going offline.
	Requeue func(*model.Task)
	// OnComplete runs after a vehicle reaches its task's destination.
	OnComplete func(t *model.Task, executorID string)
	Logger     *slog.Logger
	Now        func() time.Time
}

// VehicleState is a read-only copy of one vehicle.
type VehicleState struct {
	ID       string       `json:"id"`
	Position graph.NodeID `json:"position"`
	Online   bool         `json:"online"`
	Busy     bool         `json:"busy"`
	Stopped  bool         `json:"stopped"`
	TaskID   string       `json:"taskId,omitempty"`
	Path     graph.Path   `json:"path,omitempty"`
	Index    int          `json:"index"`
	LastSeen time.Time    `json:"lastSeen"`
}

type vehicle struct {
	id       string
	pos      graph.NodeID
	online   bool
	lastSeen time.Time

	task *model.Task
	path graph.Path
	idx  int
	// needSegment is set after a refused advance; the vehicle holds nothing
	// and retries the window at idx.
	needSegment bool
}

func (v *vehicle) busy() bool { return v.task != nil }

// Manager is a Pool of simulated vehicles. Each PerformRequests call moves
// every running vehicle one node along its path, asking the traffic
// controller for the next window as it goes.
type Manager struct {
	mu       sync.Mutex
	vehicles map[string]*vehicle
	router   Router
	segments Segments
	stats    *Stats
	opts     Options
	log      *slog.Logger
}

func NewManager(r Router, s Segments, o Options) *Manager {
	m := &Manager{
		vehicles: map[string]*vehicle{},
		router:   r,
		segments: s,
		stats:    &Stats{},
		opts:     o,
		log:      o.Logger,
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	if m.opts.Now == nil {
		m.opts.Now = time.Now
	}
	return m
}

// Stats returns the fleet's running statistics.
func (m *Manager) Stats() *Stats { return m.stats }

// Register adds an online, idle vehicle parked at pos and returns its id.
func (m *Manager) Register(pos graph.NodeID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.vehicles[id] = &vehicle{id: id, pos: pos, online: true, lastSeen: m.opts.Now()}
	m.log.Info("vehicle registered", "vehicle", id, "position", pos)
	return id
}

// Heartbeat marks a vehicle as alive and brings it back online.
func (m *Manager) Heartbeat(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrUnknownExecutor
	}
	v.lastSeen = m.opts.Now()
	v.online = true
	return nil
}

// SetOffline takes a vehicle out of service, giving back its task and path.
func (m *Manager) SetOffline(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return ErrUnknownExecutor
	}
	m.dropLocked(v, "set offline")
	return nil
}

func (m *Manager) Vehicles() []VehicleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VehicleState, 0, len(m.vehicles))
	for _, v := range m.sorted() {
		s := VehicleState{
			ID: v.id, Position: v.pos, Online: v.online, Busy: v.busy(),
			Stopped: v.needSegment, Path: v.path.Clone(), Index: v.idx, LastSeen: v.lastSeen,
		}
		if v.task != nil {
			s.TaskID = v.task.ID
		}
		out = append(out, s)
	}
	return out
}

func (m *Manager) OnlineExecutorsNumber() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.vehicles {
		if v.online {
			n++
		}
	}
	return n
}

func (m *Manager) FreeExecutorsNumber() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range m.vehicles {
		if v.online && !v.busy() {
			n++
		}
	}
	return n
}

// ClosestFreeExecutor picks the idle vehicle with the cheapest empty run to
// the task source. Vehicles that cannot reach it are skipped.
func (m *Manager) ClosestFreeExecutor(t *model.Task) (Executor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *vehicle
	bestCost := 0.0
	for _, v := range m.sorted() {
		if !v.online || v.busy() {
			continue
		}
		c, ok := m.deadhead(v.pos, t.Source)
		if !ok {
			continue
		}
		if best == nil || c < bestCost {
			best, bestCost = v, c
		}
	}
	if best == nil {
		return nil, false
	}
	return handle{m: m, id: best.id}, true
}

func (m *Manager) deadhead(from, to graph.NodeID) (float64, bool) {
	if from == to {
		return 0, true
	}
	_, c, ok := m.router.ShortestPath(from, to)
	return c, ok
}

// RefreshExecutors takes vehicles offline whose heartbeat is stale. Their
// tasks go back to the queue and their reservations are released.
func (m *Manager) RefreshExecutors() error {
	if m.opts.HeartbeatTimeout <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Now()
	for _, v := range m.sorted() {
		if v.online && now.Sub(v.lastSeen) > m.opts.HeartbeatTimeout {
			m.dropLocked(v, "heartbeat timeout")
		}
	}
	return nil
}

func (m *Manager) dropLocked(v *vehicle, reason string) {
	v.online = false
	if v.task == nil {
		m.log.Warn("vehicle offline", "vehicle", v.id, "reason", reason)
		return
	}
	m.segments.RevokePath(v.path, traffic.Owner(v.id))
	t := v.task
	v.task, v.path, v.idx, v.needSegment = nil, nil, 0, false
	m.log.Warn("vehicle offline, task returned", "vehicle", v.id, "task", t.ID, "reason", reason)
	if m.opts.Requeue != nil {
		m.opts.Requeue(t)
	}
}

// PerformRequests moves every running vehicle one node. A vehicle that
// reaches a node asks for the window starting there; if refused it stops and
// retries on the next call.
func (m *Manager) PerformRequests() error {
	m.mu.Lock()
	var done []completion
	for _, v := range m.sorted() {
		if !v.online {
			continue
		}
		if m.opts.Simulated {
			v.lastSeen = m.opts.Now()
		}
		if !v.busy() {
			continue
		}
		if c, ok := m.stepLocked(v); ok {
			done = append(done, c)
		}
	}
	m.mu.Unlock()

	if m.opts.OnComplete != nil {
		for _, c := range done {
			m.opts.OnComplete(c.task, c.executor)
		}
	}
	return nil
}

type completion struct {
	task     *model.Task
	executor string
}

func (m *Manager) stepLocked(v *vehicle) (completion, bool) {
	owner := traffic.Owner(v.id)
	if v.needSegment {
		if !m.segments.RequestNextSegment(v.path, owner, v.idx) {
			m.stats.addPenalty(1, false)
			return completion{}, false
		}
		v.needSegment = false
	}

	next := v.idx + 1
	if w, ok := m.router.EdgeWeight(v.path[v.idx], v.path[next]); ok {
		m.stats.addTransition(w)
	}
	v.idx = next
	v.pos = v.path[next]

	if v.idx == len(v.path)-1 {
		m.segments.RevokePath(v.path, owner)
		c := completion{task: v.task, executor: v.id}
		m.log.Debug("task complete", "vehicle", v.id, "task", v.task.ID)
		v.task, v.path, v.idx = nil, nil, 0
		return c, true
	}
	if !m.segments.RequestNextSegment(v.path, owner, v.idx) {
		v.needSegment = true
		m.stats.addPenalty(1, true)
		m.log.Debug("vehicle stopped", "vehicle", v.id, "at", v.pos)
	}
	return completion{}, false
}

func (m *Manager) execute(ctx context.Context, id string, t *model.Task, p graph.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p) < 2 || p[0] != t.Source || p[len(p)-1] != t.Destination {
		return fmt.Errorf("%w: task %s, path %s", ErrBadPath, t.ID, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	switch {
	case !ok:
		return ErrUnknownExecutor
	case !v.online:
		return ErrOffline
	case v.busy():
		return ErrBusy
	}
	if c, ok := m.deadhead(v.pos, t.Source); ok {
		m.stats.addTransition(c)
	}
	if !t.EnqueuedAt.IsZero() {
		m.stats.addQueue(m.opts.Now().Sub(t.EnqueuedAt).Seconds())
	}
	v.task, v.path, v.idx, v.needSegment = t, p.Clone(), 0, false
	v.pos = p[0]
	return nil
}

// sorted returns vehicles by id so every pass visits them in the same order.
func (m *Manager) sorted() []*vehicle {
	out := make([]*vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// handle is the Executor the scheduler holds for one vehicle.
type handle struct {
	m  *Manager
	id string
}

func (h handle) ID() string { return h.id }

func (h handle) ExecuteJob(ctx context.Context, t *model.Task, p graph.Path) error {
	return h.m.execute(ctx, h.id, t, p)
}
