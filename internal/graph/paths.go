package graph

import (
	"github.com/emirpasic/gods/trees/binaryheap"
)

type frontierItem struct {
	node NodeID
	dist float64
}

func byDist(a, b interface{}) int {
	x, y := a.(frontierItem), b.(frontierItem)
	switch {
	case x.dist < y.dist:
		return -1
	case x.dist > y.dist:
		return 1
	case x.node < y.node:
		return -1
	case x.node > y.node:
		return 1
	default:
		return 0
	}
}

type candidate struct {
	path Path
	cost float64
}

// byCost orders candidates by cost, then lexicographically so equal-cost
// alternatives come out in a stable order.
func byCost(a, b interface{}) int {
	x, y := a.(candidate), b.(candidate)
	switch {
	case x.cost < y.cost:
		return -1
	case x.cost > y.cost:
		return 1
	}
	for i := 0; i < len(x.path) && i < len(y.path); i++ {
		if x.path[i] != y.path[i] {
			if x.path[i] < y.path[i] {
				return -1
			}
			return 1
		}
	}
	return len(x.path) - len(y.path)
}

// ShortestPath runs Dijkstra from src to dst.
func (g *Graph) ShortestPath(src, dst NodeID) (Path, float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dijkstra(src, dst, nil, nil)
}

// dijkstra ignores the banned nodes and edges; the caller holds the read lock.
func (g *Graph) dijkstra(src, dst NodeID, bannedNodes map[NodeID]bool, bannedEdges map[pair]bool) (Path, float64, bool) {
	if _, ok := g.nodes[src]; !ok {
		return nil, 0, false
	}
	if _, ok := g.nodes[dst]; !ok || src == dst {
		return nil, 0, false
	}
	dist := map[NodeID]float64{src: 0}
	prev := map[NodeID]NodeID{}
	done := map[NodeID]bool{}
	frontier := binaryheap.NewWith(byDist)
	frontier.Push(frontierItem{node: src})
	for !frontier.Empty() {
		v, _ := frontier.Pop()
		it := v.(frontierItem)
		if done[it.node] {
			continue
		}
		done[it.node] = true
		if it.node == dst {
			break
		}
		for _, next := range g.neighbors(it.node) {
			if done[next] || bannedNodes[next] || bannedEdges[pair{it.node, next}] {
				continue
			}
			nd := it.dist + g.adj[it.node][next]
			if old, seen := dist[next]; !seen || nd < old {
				dist[next] = nd
				prev[next] = it.node
				frontier.Push(frontierItem{node: next, dist: nd})
			}
		}
	}
	if !done[dst] {
		return nil, 0, false
	}
	var rev Path
	for n := dst; ; n = prev[n] {
		rev = append(rev, n)
		if n == src {
			break
		}
	}
	p := make(Path, len(rev))
	for i := range rev {
		p[i] = rev[len(rev)-1-i]
	}
	return p, dist[dst], true
}

// KShortestPaths returns up to k distinct simple paths from src to dst in
// non-decreasing cost order, using Yen's deviation algorithm. Unknown nodes,
// src == dst, k <= 0 and unreachable destinations all yield an empty result.
func (g *Graph) KShortestPaths(src, dst NodeID, k int) []Path {
	if k <= 0 {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	first, cost, ok := g.dijkstra(src, dst, nil, nil)
	if !ok {
		return nil
	}
	accepted := []candidate{{path: first, cost: cost}}
	seen := map[string]bool{first.String(): true}
	pending := binaryheap.NewWith(byCost)

	for len(accepted) < k {
		last := accepted[len(accepted)-1].path
		for i := 0; i < len(last)-1; i++ {
			spur := last[i]
			root := last[:i+1]

			bannedEdges := map[pair]bool{}
			for _, c := range accepted {
				if len(c.path) > i+1 && c.path[:i+1].Equal(root) {
					bannedEdges[pair{c.path[i], c.path[i+1]}] = true
				}
			}
			bannedNodes := make(map[NodeID]bool, i)
			for _, n := range root[:i] {
				bannedNodes[n] = true
			}

			tail, _, ok := g.dijkstra(spur, dst, bannedNodes, bannedEdges)
			if !ok {
				continue
			}
			total := make(Path, 0, i+len(tail))
			total = append(total, root[:i]...)
			total = append(total, tail...)
			key := total.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			c, _ := g.pathCost(total)
			pending.Push(candidate{path: total, cost: c})
		}
		v, ok := pending.Pop()
		if !ok {
			break
		}
		accepted = append(accepted, v.(candidate))
	}

	out := make([]Path, len(accepted))
	for i, c := range accepted {
		out[i] = c.path
	}
	return out
}
