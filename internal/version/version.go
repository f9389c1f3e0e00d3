// Package version holds build metadata set with -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("llmgate %s (commit %s, built %s)", Version, Commit, Date)
}
