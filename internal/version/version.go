// Package version holds neurochat build information injected via -ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build information set at compile time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the full build description.
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// GetInfo parses the version and returns the build description.
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		SemVer:    sv,
	}, nil
}

// GetFormattedVersion returns a one-line version string.
func GetFormattedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("neurochat v%s (invalid version)", Version)
	}

	parts := []string{fmt.Sprintf("neurochat v%s", info.Version)}
	if info.GitCommit != "unknown" && info.GitCommit != "" {
		shortCommit := info.GitCommit
		if len(shortCommit) > 7 {
			shortCommit = shortCommit[:7]
		}
		parts = append(parts, fmt.Sprintf("commit %s", shortCommit))
	}
	if info.BuildDate != "unknown" && info.BuildDate != "" {
		parts = append(parts, fmt.Sprintf("built %s", info.BuildDate))
	}
	return strings.Join(parts, ", ")
}

// GetDetailedVersion returns multi-line build information for `neurochat version --detailed`.
func GetDetailedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("neurochat v%s (error: %v)", Version, err)
	}

	lines := []string{
		fmt.Sprintf("neurochat v%s", info.Version),
		fmt.Sprintf("Git Commit: %s", info.GitCommit),
		fmt.Sprintf("Build Date: %s", info.BuildDate),
	}
	if meta := info.SemVer.Metadata(); meta != "" {
		lines = append(lines, fmt.Sprintf("Build Metadata: %s", meta))
	}
	if IsPrerelease() {
		lines = append(lines, fmt.Sprintf("Prerelease: %s", info.SemVer.Prerelease()))
	}
	if IsDevelopment() {
		lines = append(lines, "Development build: build information was not injected")
	}
	lines = append(lines,
		fmt.Sprintf("Go Version: %s", info.GoVersion),
		fmt.Sprintf("Platform: %s", info.Platform),
	)
	return strings.Join(lines, "\n")
}

// IsPrerelease reports whether the version carries a prerelease tag.
func IsPrerelease() bool {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return false
	}
	return sv.Prerelease() != ""
}

// IsDevelopment reports whether build information was not injected.
func IsDevelopment() bool {
	return GitCommit == "unknown" || BuildDate == "unknown"
}

// SetBuildInfo overrides build information. Used by tests.
func SetBuildInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}
