// Package version carries build metadata set through -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/ndtgrid/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version output.
func String() string {
	return fmt.Sprintf("ndtmap %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
