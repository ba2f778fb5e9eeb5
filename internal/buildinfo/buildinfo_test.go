package buildinfo

import "testing"

func TestInfoKeepsLinkerValues(t *testing.T) {
	old := Commit
	Commit = "abc123"
	defer func() { Commit = old }()
	info := Info()
	if info["version"] != Version || info["commit"] != "abc123" {
		t.Fatalf("info = %v", info)
	}
}
