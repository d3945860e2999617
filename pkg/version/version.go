package version

import (
	"fmt"
	"runtime"
)

// Injected at build time via -ldflags "-X github.com/kiliankoe/threader/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info represents version information for a binary
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// GetShortCommit returns the short git commit hash (first 7 characters)
func GetShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// String renders "threader v1.2.3 (abc1234, built 2026-01-01)".
func String() string {
	return fmt.Sprintf("threader %s (%s, built %s)", Version, GetShortCommit(), BuildDate)
}

// UserAgent is the default User-Agent for upstream fetches.
func UserAgent() string {
	return fmt.Sprintf("threader/%s (+https://github.com/kiliankoe/threader)", Version)
}
