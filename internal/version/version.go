// Package version holds the build version of the mina tools, set with
// -ldflags "-X github.com/minakit/mina/internal/version.Version=...".
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the version for "mina version". Development builds print
// only "dev".
func String() string {
	if Commit == "none" {
		return Version
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
