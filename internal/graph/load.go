package graph

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// File mirrors the on-disk graph description.
type File struct {
	Nodes []struct {
		ID       NodeID    `yaml:"id"`
		Features []float64 `yaml:"features"`
	} `yaml:"nodes"`
	Edges []struct {
		From       NodeID  `yaml:"from"`
		To         NodeID  `yaml:"to"`
		Weight     float64 `yaml:"weight"`
		Undirected bool    `yaml:"undirected"`
	} `yaml:"edges"`
}

// LoadYAML builds a graph from a YAML description.
func LoadYAML(r io.Reader) (*Graph, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	g := New()
	for _, n := range f.Nodes {
		g.EnsureNode(n.ID)
		if len(n.Features) > 0 {
			g.SetFeatures(n.ID, n.Features)
		}
	}
	for _, e := range f.Edges {
		var err error
		if e.Undirected {
			err = g.AddUndirectedEdge(e.From, e.To, e.Weight)
		} else {
			err = g.SetEdgeWeight(e.From, e.To, e.Weight)
		}
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

// LoadFile reads a graph file. Files ending in .hcl are HCL with unit
// default weight; anything else is YAML.
func LoadFile(path string) (*Graph, error) {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		return LoadHCL(path, 1)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadYAML(f)
}

// Grid builds a rows x cols grid of undirected unit-weight edges. Node ids
// run row-major from 0. It is the default track layout when no graph file
// is configured.
func Grid(rows, cols int, weight float64) *Graph {
	g := New()
	id := func(r, c int) NodeID { return NodeID(r*cols + c) }
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.EnsureNode(id(r, c))
			if c+1 < cols {
				_ = g.AddUndirectedEdge(id(r, c), id(r, c+1), weight)
			}
			if r+1 < rows {
				_ = g.AddUndirectedEdge(id(r, c), id(r+1, c), weight)
			}
		}
	}
	return g
}
