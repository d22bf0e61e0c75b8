package app

import (
	"fmt"
	"runtime/debug"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitTag    = ""
	BuildTime = "unknown"
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string
	GitCommit string
	GitTag    string
	BuildTime string
}

// GetVersionInfo returns the ldflags values, falling back to the VCS stamp Go embeds
// when the binary was built without them.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
	if build, ok := debug.ReadBuildInfo(); ok {
		info = info.withBuildSettings(build.Settings)
	}
	return info
}

func (v VersionInfo) withBuildSettings(settings []debug.BuildSetting) VersionInfo {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if v.GitCommit == "unknown" && s.Value != "" {
				v.GitCommit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if v.BuildTime == "unknown" && s.Value != "" {
				v.BuildTime = s.Value
			}
		}
	}
	return v
}

// FullString returns a detailed version string for logging.
func (v VersionInfo) FullString() string {
	version := v.Version
	if v.GitTag != "" {
		version = v.GitTag
	}
	return fmt.Sprintf("Mantra %s (commit: %s, built: %s)", version, v.GitCommit, v.BuildTime)
}
