// Package version holds build metadata injected via ldflags.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build metadata as a single line.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
