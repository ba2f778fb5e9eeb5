package graph

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclGraphFile is the HCL form of a graph file:
//
//	node "3" { features = [0.5, 1] }
//	edge {
//	  from       = 0
//	  to         = 1
//	  weight     = default_weight * 2
//	  undirected = true
//	}
//
// default_weight is in scope for every expression; an edge without weight
// gets it.
type hclGraphFile struct {
	Nodes []hclNode `hcl:"node,block"`
	Edges []hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID       string    `hcl:"id,label"`
	Features []float64 `hcl:"features,optional"`
}

type hclEdge struct {
	From       int      `hcl:"from"`
	To         int      `hcl:"to"`
	Weight     *float64 `hcl:"weight,optional"`
	Undirected bool     `hcl:"undirected,optional"`
}

// LoadHCL builds a graph from an HCL file.
func LoadHCL(path string, defaultWeight float64) (*Graph, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse graph %s: %w", path, diags)
	}
	ctx := &hcl.EvalContext{Variables: map[string]cty.Value{
		"default_weight": cty.NumberFloatVal(defaultWeight),
	}}
	var parsed hclGraphFile
	if diags := gohcl.DecodeBody(f.Body, ctx, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("decode graph %s: %w", path, diags)
	}

	g := New()
	for _, n := range parsed.Nodes {
		id, err := strconv.Atoi(n.ID)
		if err != nil {
			return nil, fmt.Errorf("graph %s: node label %q is not an integer", path, n.ID)
		}
		g.EnsureNode(NodeID(id))
		if len(n.Features) > 0 {
			g.SetFeatures(NodeID(id), n.Features)
		}
	}
	for _, e := range parsed.Edges {
		w := defaultWeight
		if e.Weight != nil {
			w = *e.Weight
		}
		var err error
		if e.Undirected {
			err = g.AddUndirectedEdge(NodeID(e.From), NodeID(e.To), w)
		} else {
			err = g.SetEdgeWeight(NodeID(e.From), NodeID(e.To), w)
		}
		if err != nil {
			return nil, fmt.Errorf("graph %s: %w", path, err)
		}
	}
	return g, nil
}
