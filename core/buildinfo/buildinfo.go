// Package buildinfo holds version stamps injected by the linker:
//
//	go build -ldflags "-X github.com/m3rciful/flowbot/core/buildinfo.Version=v0.3.0 \
//	  -X github.com/m3rciful/flowbot/core/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/m3rciful/flowbot/core/buildinfo.Date=$(date -u +%FT%TZ)"
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "local"
	// Date is RFC3339; empty for local builds.
	Date = ""
)

// String renders the stamps for `flowbot version`.
func String() string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("flowbot %s (commit %s, built %s)", Version, Commit, date)
}
