// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/OpenCHAMI/pdusim/internal/version.Version=v0.1.0 \
//	  -X github.com/OpenCHAMI/pdusim/internal/version.GitCommit=$(git rev-parse HEAD)"
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release number or semantic version.
	Version string
	// GitCommit is the commit the binary was built from.
	GitCommit string
	// GitTag is the most recent tag at build time, if any.
	GitTag string
	// GitState is "clean" or "dirty".
	GitState string
	// BuildTime is the UTC build timestamp.
	BuildTime string
	// BuildHost is the hostname of the build machine.
	BuildHost string
)

type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitTag    string `json:"git_tag"`
	GitState  string `json:"git_state"`
	BuildTime string `json:"build_time"`
	BuildHost string `json:"build_host"`
	GoVersion string `json:"go_version"`
}

// Get collects the injected values. GoVersion always comes from the
// running binary.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		GitTag:    GitTag,
		GitState:  GitState,
		BuildTime: BuildTime,
		BuildHost: BuildHost,
		GoVersion: runtime.Version(),
	}
}

// String is the one-line form printed by `pdusim version`.
func (i Info) String() string {
	v := i.Version
	if v == "" {
		v = "dev"
	}
	if i.GitCommit == "" {
		return v
	}
	commit := i.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if i.GitState == "dirty" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s)", v, commit)
}
