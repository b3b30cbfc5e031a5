// Package version carries the build version stamped in at link time.
package version

import "fmt"

var (
	// Version is overridden via -ldflags at release builds.
	Version = "dev"
	Commit  = ""
)

// GetInfo renders the human-readable version string.
func GetInfo() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
