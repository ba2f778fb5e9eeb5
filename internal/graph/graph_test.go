package graph

import (
	"math/rand"
	"sort"
	"strings"
	"testing"
)

func diamond(t *testing.T) *Graph {
	t.Helper()
	g := New()
	err := g.AddEdges(
		Edge{0, 1, 1}, Edge{1, 4, 1},
		Edge{0, 2, 1}, Edge{2, 4, 2},
		Edge{0, 3, 2}, Edge{3, 4, 2},
		Edge{1, 2, 1},
	)
	if err != nil {
		t.Fatalf("AddEdges: %v", err)
	}
	return g
}

func TestSetEdgeWeightLastWriteWins(t *testing.T) {
	g := New()
	writes := []float64{3, 1.5, 7, 0, 2}
	for _, w := range writes {
		if err := g.SetEdgeWeight(1, 2, w); err != nil {
			t.Fatalf("SetEdgeWeight(%v): %v", w, err)
		}
		got, ok := g.EdgeWeight(1, 2)
		if !ok || got != w {
			t.Fatalf("EdgeWeight = %v,%v want %v", got, ok, w)
		}
	}
	if n := len(g.EdgeList()); n != 1 {
		t.Fatalf("upsert duplicated edge: %d edges", n)
	}
	if _, ok := g.EdgeWeight(2, 1); ok {
		t.Fatalf("reverse edge should not exist")
	}
}

func TestSetEdgeWeightRejectsNegative(t *testing.T) {
	g := New()
	if err := g.SetEdgeWeight(0, 1, -1); err == nil {
		t.Fatalf("expected error for negative weight")
	}
	if _, ok := g.EdgeWeight(0, 1); ok {
		t.Fatalf("rejected edge was stored")
	}
}

func TestUndirectedEdgeBothDirections(t *testing.T) {
	g := New()
	if err := g.AddUndirectedEdge(3, 5, 4); err != nil {
		t.Fatal(err)
	}
	a, okA := g.EdgeWeight(3, 5)
	b, okB := g.EdgeWeight(5, 3)
	if !okA || !okB || a != b || a != 4 {
		t.Fatalf("undirected weights: %v,%v %v,%v", a, okA, b, okB)
	}
}

func TestKShortestPathsDiamond(t *testing.T) {
	g := diamond(t)
	got := g.KShortestPaths(0, 4, 3)
	want := []Path{{0, 1, 4}, {0, 2, 4}, {0, 1, 2, 4}}
	if len(got) != len(want) {
		t.Fatalf("got %d paths, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("path %d = %v, want %v", i, got[i], want[i])
		}
	}
	all := g.KShortestPaths(0, 4, 10)
	if len(all) != 4 {
		t.Fatalf("expected every simple path (4), got %d: %v", len(all), all)
	}
	if !all[3].Equal(Path{0, 3, 4}) {
		t.Fatalf("last path = %v", all[3])
	}
}

func TestKShortestPathsEmptyCases(t *testing.T) {
	g := diamond(t)
	g.EnsureNode(9)
	cases := []struct {
		name     string
		src, dst NodeID
		k        int
	}{
		{"unreachable", 0, 9, 3},
		{"reverse direction", 4, 0, 3},
		{"unknown node", 0, 42, 3},
		{"same node", 2, 2, 3},
		{"zero k", 0, 4, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := g.KShortestPaths(tc.src, tc.dst, tc.k); len(got) != 0 {
				t.Fatalf("expected no paths, got %v", got)
			}
		})
	}
}

// allSimplePathCosts enumerates every simple src->dst path by DFS.
func allSimplePathCosts(g *Graph, src, dst NodeID) []float64 {
	var costs []float64
	visited := map[NodeID]bool{src: true}
	var walk func(n NodeID, acc float64)
	walk = func(n NodeID, acc float64) {
		if n == dst {
			costs = append(costs, acc)
			return
		}
		for _, m := range g.Neighbors(n) {
			if visited[m] {
				continue
			}
			w, _ := g.EdgeWeight(n, m)
			visited[m] = true
			walk(m, acc+w)
			visited[m] = false
		}
	}
	walk(src, 0)
	sort.Float64s(costs)
	return costs
}

func TestKShortestPathsRandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 60; round++ {
		g := New()
		const n = 7
		for i := 0; i < n; i++ {
			g.EnsureNode(NodeID(i))
		}
		for a := 0; a < n; a++ {
			for b := 0; b < n; b++ {
				if a != b && rng.Float64() < 0.4 {
					_ = g.SetEdgeWeight(NodeID(a), NodeID(b), float64(1+rng.Intn(9)))
				}
			}
		}
		k := 1 + rng.Intn(6)
		paths := g.KShortestPaths(0, n-1, k)
		costs := allSimplePathCosts(g, 0, n-1)

		wantLen := k
		if len(costs) < k {
			wantLen = len(costs)
		}
		if len(paths) != wantLen {
			t.Fatalf("round %d: got %d paths, want %d", round, len(paths), wantLen)
		}
		seen := map[string]bool{}
		prev := -1.0
		for i, p := range paths {
			if p[0] != 0 || p[len(p)-1] != n-1 {
				t.Fatalf("round %d: bad endpoints %v", round, p)
			}
			nodes := map[NodeID]bool{}
			for _, v := range p {
				if nodes[v] {
					t.Fatalf("round %d: path not simple %v", round, p)
				}
				nodes[v] = true
			}
			c, ok := g.PathCost(p)
			if !ok {
				t.Fatalf("round %d: invalid path %v", round, p)
			}
			if c < prev {
				t.Fatalf("round %d: costs not ascending at %d", round, i)
			}
			if c != costs[i] {
				t.Fatalf("round %d: path %d cost %v, want %v", round, i, c, costs[i])
			}
			prev = c
			if seen[p.String()] {
				t.Fatalf("round %d: duplicate path %v", round, p)
			}
			seen[p.String()] = true
		}
	}
}

func TestShortestPathMatchesFirstKPath(t *testing.T) {
	g := Grid(3, 4, 1)
	p, c, ok := g.ShortestPath(0, 11)
	if !ok || c != 5 {
		t.Fatalf("ShortestPath = %v %v %v", p, c, ok)
	}
	first := g.KShortestPaths(0, 11, 1)
	if len(first) != 1 || !first[0].Equal(p) {
		t.Fatalf("k=1 path %v differs from %v", first, p)
	}
}

func TestNodeFeaturesDefault(t *testing.T) {
	g := New()
	a := g.AddVertex(nil)
	b := g.AddVertex([]float64{0.2, 0.4})
	f := g.NodeFeatures()
	if len(f[a]) != 1 || f[a][0] != 1.0 {
		t.Fatalf("default features = %v", f[a])
	}
	if len(f[b]) != 2 || f[b][1] != 0.4 {
		t.Fatalf("features = %v", f[b])
	}
	if b != a+1 {
		t.Fatalf("AddVertex ids %d %d", a, b)
	}
}

func TestAdjacencyMatrixSymmetric(t *testing.T) {
	g := New()
	_ = g.SetEdgeWeight(0, 2, 5)
	m := g.AdjacencyMatrix()
	if len(m) != 3 || m[0][2] != 5 || m[2][0] != 5 || m[1][1] != 0 {
		t.Fatalf("matrix = %v", m)
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
nodes:
  - id: 0
    features: [0.5, 1]
  - id: 3
edges:
  - {from: 0, to: 1, weight: 2}
  - {from: 1, to: 3, weight: 1.5, undirected: true}
`
	g, err := LoadYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if w, ok := g.EdgeWeight(3, 1); !ok || w != 1.5 {
		t.Fatalf("undirected edge missing: %v %v", w, ok)
	}
	if _, ok := g.EdgeWeight(1, 0); ok {
		t.Fatalf("directed edge mirrored")
	}
	if f := g.NodeFeatures()[0]; len(f) != 2 {
		t.Fatalf("features = %v", f)
	}
	if _, err := LoadYAML(strings.NewReader("edges:\n  - {from: 0, to: 1, weight: -3}\n")); err == nil {
		t.Fatalf("expected negative weight error")
	}
}
