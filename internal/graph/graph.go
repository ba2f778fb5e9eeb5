// Package graph holds the weighted route graph the fleet moves over and
// answers shortest and k-shortest path queries on it.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// NodeID is the stable integer index of a route node.
type NodeID int

// Node carries an optional feature vector. The graph never interprets it; it
// is handed through to scoring oracles.
type Node struct {
	ID       NodeID
	Features []float64
}

// Edge is a directed, weighted connection between two nodes.
type Edge struct {
	From   NodeID  `json:"from" yaml:"from"`
	To     NodeID  `json:"to" yaml:"to"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Path is an ordered sequence of node ids. A usable path has at least two
// nodes and every consecutive pair is an edge.
type Path []NodeID

// Edges returns the consecutive node pairs of p.
func (p Path) Edges() [][2]NodeID {
	if len(p) < 2 {
		return nil
	}
	out := make([][2]NodeID, 0, len(p)-1)
	for i := 1; i < len(p); i++ {
		out = append(out, [2]NodeID{p[i-1], p[i]})
	}
	return out
}

// Equal reports whether p and q visit the same nodes in the same order.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of p that shares no storage with it.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path(nil), p...)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(int(n))
	}
	return strings.Join(parts, "->")
}

var (
	ErrNegativeWeight = errors.New("graph: negative edge weight")
	ErrSelfLoop       = errors.New("graph: self loop")
)

type pair struct{ from, to NodeID }

// Graph is a weighted, node-indexed graph. It is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	adj   map[NodeID]map[NodeID]float64
	order []pair // edge insertion order, for stable listings
	next  NodeID
}

func New() *Graph {
	return &Graph{
		nodes: map[NodeID]*Node{},
		adj:   map[NodeID]map[NodeID]float64{},
	}
}

// AddVertex appends a node with the given features and returns its index.
func (g *Graph) AddVertex(features []float64) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	g.ensureNode(id)
	g.nodes[id].Features = append([]float64(nil), features...)
	return id
}

// EnsureNode registers id if it is not known yet.
func (g *Graph) EnsureNode(id NodeID) {
	g.mu.Lock()
	g.ensureNode(id)
	g.mu.Unlock()
}

func (g *Graph) ensureNode(id NodeID) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &Node{ID: id}
	if id >= g.next {
		g.next = id + 1
	}
}

// SetFeatures replaces the feature vector of an existing node.
func (g *Graph) SetFeatures(id NodeID, features []float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	n.Features = append([]float64(nil), features...)
	return true
}

// AddEdges upserts every edge. Re-adding an existing ordered pair updates its
// weight in place.
func (g *Graph) AddEdges(edges ...Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range edges {
		if err := g.setEdge(e.From, e.To, e.Weight); err != nil {
			return err
		}
	}
	return nil
}

// AddUndirectedEdge writes a->b and b->a with the same weight.
func (g *Graph) AddUndirectedEdge(a, b NodeID, w float64) error {
	return g.AddEdges(Edge{From: a, To: b, Weight: w}, Edge{From: b, To: a, Weight: w})
}

// SetEdgeWeight is an idempotent upsert of the a->b weight.
func (g *Graph) SetEdgeWeight(a, b NodeID, w float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setEdge(a, b, w)
}

func (g *Graph) setEdge(a, b NodeID, w float64) error {
	if w < 0 {
		return fmt.Errorf("%w: %d->%d = %v", ErrNegativeWeight, a, b, w)
	}
	if a == b {
		return fmt.Errorf("%w: %d", ErrSelfLoop, a)
	}
	g.ensureNode(a)
	g.ensureNode(b)
	out := g.adj[a]
	if out == nil {
		out = map[NodeID]float64{}
		g.adj[a] = out
	}
	if _, ok := out[b]; !ok {
		g.order = append(g.order, pair{a, b})
	}
	out[b] = w
	return nil
}

// EdgeWeight returns the a->b weight, or false when there is no such edge.
func (g *Graph) EdgeWeight(a, b NodeID) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.adj[a][b]
	return w, ok
}

// HasNode reports whether id is a known node.
func (g *Graph) HasNode(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all node ids in ascending order.
func (g *Graph) Nodes() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Neighbors returns the heads of a's outgoing edges in ascending order.
func (g *Graph) Neighbors(a NodeID) []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighbors(a)
}

func (g *Graph) neighbors(a NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.adj[a]))
	for b := range g.adj[a] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NodeFeatures returns a copy of every node's features. Nodes without
// features report [1.0].
func (g *Graph) NodeFeatures() map[NodeID][]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[NodeID][]float64, len(g.nodes))
	for id, n := range g.nodes {
		if len(n.Features) == 0 {
			out[id] = []float64{1.0}
			continue
		}
		out[id] = append([]float64(nil), n.Features...)
	}
	return out
}

// EdgeList returns every edge in insertion order.
func (g *Graph) EdgeList() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.order))
	for _, p := range g.order {
		out = append(out, Edge{From: p.from, To: p.to, Weight: g.adj[p.from][p.to]})
	}
	return out
}

// AdjacencyMatrix returns a symmetric weight matrix indexed by node id
// (0..max id). Missing edges are 0.
func (g *Graph) AdjacencyMatrix() [][]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := int(g.next)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for _, p := range g.order {
		w := g.adj[p.from][p.to]
		m[p.from][p.to] = w
		m[p.to][p.from] = w
	}
	return m
}

// PathCost sums the edge weights along p. It returns false if p has fewer
// than two nodes or uses an edge the graph does not have.
func (g *Graph) PathCost(p Path) (float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pathCost(p)
}

func (g *Graph) pathCost(p Path) (float64, bool) {
	if len(p) < 2 {
		return 0, false
	}
	total := 0.0
	for i := 1; i < len(p); i++ {
		w, ok := g.adj[p[i-1]][p[i]]
		if !ok {
			return 0, false
		}
		total += w
	}
	return total, true
}
