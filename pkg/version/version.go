// Package version exposes build metadata set at link time, e.g.
//
//	go build -ldflags "-X github.com/NERVsystems/osmextract/pkg/version.BuildVersion=v1.2.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags
var (
	BuildVersion = "dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// Info returns the build metadata as a flat map
func Info() map[string]string {
	commit := BuildCommit
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					commit = s.Value
				}
			}
		}
	}
	return map[string]string{
		"version":    BuildVersion,
		"commit":     commit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}

// String returns a one-line version description
func String() string {
	info := Info()
	return fmt.Sprintf("osmextract %s (commit %s, built %s, %s)",
		info["version"], info["commit"], info["build_date"], info["go_version"])
}
