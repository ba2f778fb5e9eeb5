// Package traffic reserves stretches of track for executors so that no two
// of them are ever committed to the same edge at the same time.
//
// A path in use moves through Unassigned -> Reserved(segment 0) ->
// Reserved(segment i) -> ... -> Released. A segment is a window of LockRange
// consecutive edges starting at a node index of the path. Executors advance
// the window one node at a time with RequestNextSegment and give everything
// back with RevokePath.
//
// Every read and write of the reservation table happens under one mutex per
// Controller, held across the whole evaluate-then-reserve sequence.
package traffic

import (
	"log/slog"
	"sync"

	"fleetnav/internal/graph"
	"fleetnav/internal/oracle"
)

const (
	DefaultLockRange  = 5
	DefaultCandidates = 3
)

// PathSource is the part of the route graph the controller needs.
type PathSource interface {
	KShortestPaths(src, dst graph.NodeID, k int) []graph.Path
	PathCost(p graph.Path) (float64, bool)
	HasNode(id graph.NodeID) bool
}

// Observer receives reservation outcomes ("granted", "denied", "advanced",
// "blocked", "revoked") and the number of edges reserved afterwards.
type Observer interface {
	ObserveReservation(result string, reservedEdges int)
}

type Option func(*Controller)

func WithLockRange(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.lockRange = n
		}
	}
}

func WithCandidates(k int) Option {
	return func(c *Controller) {
		if k > 0 {
			c.candidates = k
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.obs = o }
}

// WithUndirectedReservations makes a->b and b->a one reservation, for
// tracks that cannot be driven in both directions at once.
func WithUndirectedReservations() Option {
	return func(c *Controller) { c.undirected = true }
}

// Controller picks paths for executors and owns the reservation table.
type Controller struct {
	mu         sync.Mutex
	g          PathSource
	scorer     oracle.PathScorer
	table      *Table
	paths      map[Owner]graph.Path
	lockRange  int
	candidates int
	undirected bool
	obs        Observer
	log        *slog.Logger
}

// NewController builds a controller over g. scorer may be nil, in which case
// only the free-path fallbacks are used.
func NewController(g PathSource, scorer oracle.PathScorer, opts ...Option) *Controller {
	c := &Controller{
		g:          g,
		scorer:     scorer,
		table:      NewTable(),
		paths:      map[Owner]graph.Path{},
		lockRange:  DefaultLockRange,
		candidates: DefaultCandidates,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Controller) LockRange() int { return c.lockRange }

// RequestPath picks a path from src to dst for owner and reserves its first
// segment. Candidates the scorer ranks come first, best score first; the
// first one whose opening segment is free wins. Without a usable ranking it
// falls back to the cheapest completely free candidate, then the cheapest
// candidate whose opening segment is free. It returns false when nothing can
// be reserved right now.
func (c *Controller) RequestPath(src, dst graph.NodeID, owner Owner) (graph.Path, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := c.g.KShortestPaths(src, dst, c.candidates)
	path := c.pickScored(paths, owner)
	if path == nil {
		path = c.pickFree(paths, owner)
	}
	if path == nil {
		path = c.pickPartiallyFree(paths, owner)
	}
	if path == nil {
		c.log.Debug("no path available", "src", src, "dst", dst, "owner", owner, "candidates", len(paths))
		c.observe("denied")
		return nil, false
	}
	c.grant(path, owner)
	return path.Clone(), true
}

// ReservePath reserves the first segment of a path chosen elsewhere, such as
// the route the optimizer attached to a task. It returns false when the path
// is no longer a route in the graph or its opening segment is taken.
func (c *Controller) ReservePath(path graph.Path, owner Owner) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(path) < 2 {
		return false
	}
	if _, ok := c.g.PathCost(path); !ok || !c.segmentFree(path, 0, owner) {
		c.observe("denied")
		return false
	}
	c.grant(path, owner)
	return true
}

// grant reserves the opening segment of path for owner. A path the owner
// still held is released first so none of its edges outlive the handover.
func (c *Controller) grant(path graph.Path, owner Owner) {
	if held, ok := c.paths[owner]; ok {
		c.unassignSegment(held, owner, 0, len(held))
		delete(c.paths, owner)
	}
	c.assignSegment(path, owner, 0)
	c.paths[owner] = path.Clone()
	c.log.Debug("path reserved", "owner", owner, "path", path.String())
	c.observe("granted")
}

func (c *Controller) pickScored(paths []graph.Path, owner Owner) graph.Path {
	for _, i := range oracle.Ranked(paths, c.scorer) {
		if len(paths[i]) >= 2 && c.segmentFree(paths[i], 0, owner) {
			return paths[i]
		}
	}
	return nil
}

// candidates arrive cheapest first, so the first match is the fastest
func (c *Controller) pickFree(paths []graph.Path, owner Owner) graph.Path {
	for _, p := range paths {
		if c.segmentFreeRange(p, 0, len(p), owner) {
			return p
		}
	}
	return nil
}

func (c *Controller) pickPartiallyFree(paths []graph.Path, owner Owner) graph.Path {
	for _, p := range paths {
		if c.segmentFree(p, 0, owner) {
			return p
		}
	}
	return nil
}

// RequestNextSegment releases owner's window starting at startingPoint-1 and
// reserves the window starting at startingPoint if every edge in it is free.
// On false the old window stays released and the executor must stop.
func (c *Controller) RequestNextSegment(path graph.Path, owner Owner, startingPoint int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unassignSegment(path, owner, startingPoint-1, c.lockRange)
	if !c.segmentFree(path, startingPoint, owner) {
		c.log.Debug("segment blocked", "owner", owner, "path", path.String(), "at", startingPoint)
		c.observe("blocked")
		return false
	}
	c.assignSegment(path, owner, startingPoint)
	c.observe("advanced")
	return true
}

// RevokePath releases every edge of path held by owner. Edges owner does not
// hold are ignored, so it is safe to call at any point.
func (c *Controller) RevokePath(path graph.Path, owner Owner) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unassignSegment(path, owner, 0, len(path))
	if held, ok := c.paths[owner]; ok && held.Equal(path) {
		delete(c.paths, owner)
	}
	c.observe("revoked")
}

// LowestCost is the cost of the single best src->dst path, ignoring
// reservations.
func (c *Controller) LowestCost(src, dst graph.NodeID) (float64, bool) {
	paths := c.g.KShortestPaths(src, dst, 1)
	if len(paths) == 0 {
		return 0, false
	}
	return c.g.PathCost(paths[0])
}

// SegmentNodes returns the nodes covered by the window starting at
// startingPoint.
func (c *Controller) SegmentNodes(path graph.Path, startingPoint int) []graph.NodeID {
	if startingPoint < 0 || startingPoint >= len(path) {
		return nil
	}
	end := startingPoint + c.lockRange + 1
	if end > len(path) {
		end = len(path)
	}
	return append([]graph.NodeID(nil), path[startingPoint:end]...)
}

func (c *Controller) IsValidLocation(n graph.NodeID) bool { return c.g.HasNode(n) }

// Reservations returns a copy of the reservation table.
func (c *Controller) Reservations() map[EdgeKey]Owner {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.Snapshot()
}

// PathOf returns the path last granted to owner, if still held.
func (c *Controller) PathOf(owner Owner) (graph.Path, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.paths[owner]
	return p.Clone(), ok
}

func (c *Controller) key(a, b graph.NodeID) EdgeKey {
	if c.undirected && b < a {
		a, b = b, a
	}
	return EdgeKey{From: a, To: b}
}

// window returns the edge index range [lo, hi] (edge i joins path[i-1] and
// path[i]) covered by n edges starting at node start.
func window(path graph.Path, start, n int) (lo, hi int) {
	lo = start + 1
	if lo < 1 {
		lo = 1
	}
	hi = start + n
	if hi > len(path)-1 {
		hi = len(path) - 1
	}
	return lo, hi
}

func (c *Controller) segmentFree(path graph.Path, start int, owner Owner) bool {
	return c.segmentFreeRange(path, start, c.lockRange, owner)
}

func (c *Controller) segmentFreeRange(path graph.Path, start, n int, owner Owner) bool {
	lo, hi := window(path, start, n)
	for i := lo; i <= hi; i++ {
		if !c.table.Free(c.key(path[i-1], path[i]), owner) {
			return false
		}
	}
	return true
}

func (c *Controller) assignSegment(path graph.Path, owner Owner, start int) {
	lo, hi := window(path, start, c.lockRange)
	for i := lo; i <= hi; i++ {
		if err := c.table.Reserve(c.key(path[i-1], path[i]), owner); err != nil {
			// freedom was checked under the same lock; reaching this is a bug
			panic(err)
		}
	}
}

func (c *Controller) unassignSegment(path graph.Path, owner Owner, start, n int) {
	lo, hi := window(path, start, n)
	for i := lo; i <= hi; i++ {
		c.table.Release(c.key(path[i-1], path[i]), owner)
	}
}

func (c *Controller) observe(result string) {
	if c.obs != nil {
		c.obs.ObserveReservation(result, c.table.Len())
	}
}
