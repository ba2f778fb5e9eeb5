package graph

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileHCL(t *testing.T) {
	path := writeFile(t, "track.hcl", `
node "0" {
  features = [0.5, 1]
}

edge {
  from       = 0
  to         = 1
  undirected = true
}

edge {
  from   = 1
  to     = 2
  weight = default_weight * 3
}
`)
	g, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if w, ok := g.EdgeWeight(1, 0); !ok || w != 1 {
		t.Fatalf("undirected edge with default weight: %v %v", w, ok)
	}
	if w, ok := g.EdgeWeight(1, 2); !ok || w != 3 {
		t.Fatalf("expression weight: %v %v", w, ok)
	}
	if _, ok := g.EdgeWeight(2, 1); ok {
		t.Fatal("directed edge mirrored")
	}
	if f := g.NodeFeatures()[0]; len(f) != 2 || f[0] != 0.5 {
		t.Fatalf("features = %v", f)
	}
}

func TestLoadHCLErrors(t *testing.T) {
	cases := map[string]string{
		"syntax":   `edge { from = `,
		"label":    `node "x" {}`,
		"negative": "edge {\n  from = 0\n  to = 1\n  weight = -1\n}\n",
		"missing":  "edge {\n  from = 0\n}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadHCL(writeFile(t, name+".hcl", body), 1); err == nil {
				t.Fatal("accepted")
			}
		})
	}
}
