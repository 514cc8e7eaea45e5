// Package config exposes build metadata for eventalerts binaries.
package config

import (
	"fmt"
	"runtime"
)

// Build information. Populated at build time via -ldflags, e.g.
//
//	-X github.com/good-yellow-bee/eventalerts/pkg/config.Version=v1.2.0
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// VersionString returns the one-line version banner.
func VersionString() string {
	return fmt.Sprintf("eventalerts %s (commit %s, built %s, %s %s)",
		Version, Commit, BuildTime, runtime.Version(), runtime.GOOS+"/"+runtime.GOARCH)
}
