// Package version holds the build-time version metadata, overridable
// via -ldflags at release build time.
package version

// Version and Commit are overwritten by -ldflags "-X" at release build
// time; the zero values below are what a `go run`/dev build reports.
var (
	Version = "dev"
	Commit  = "unknown"
)
