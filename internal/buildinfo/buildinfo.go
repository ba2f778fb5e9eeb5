// Package buildinfo reports what binary is running. Version, Commit and
// BuiltAt are set with -ldflags "-X fleetnav/internal/buildinfo.Version=...".
package buildinfo

import "runtime/debug"

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info merges the linker-set values with what the Go toolchain stamped into
// the binary. The vcs revision fills in Commit when it was not set.
func Info() map[string]string {
	out := map[string]string{
		"version": Version,
		"commit":  Commit,
		"builtAt": BuiltAt,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out["go"] = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if out["commit"] == "" {
				out["commit"] = s.Value
			}
		case "vcs.modified":
			out["dirty"] = s.Value
		}
	}
	return out
}
