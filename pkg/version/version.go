// Package version carries ctxforge's build identity, set via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Version is set via -X github.com/ctxforge/ctxforge/pkg/version.Version
// at build time; defaults to "dev" for local builds.
var Version = "dev"

var (
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// Info is structured version information for JSON output.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the full human-readable build string.
func String() string {
	return fmt.Sprintf("ctxforge %s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}

// Short returns just the version number.
func Short() string { return Version }

// GetInfo returns structured version information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
