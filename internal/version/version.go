// Package version holds the build version stamp, in the teacher's style
// (internal/version.Version, overridable via -ldflags at build time).
package version

// Version is the build version string. Release builds override it with
// -ldflags "-X github.com/fedora-ci/kaijs-go/internal/version.Version=...".
var Version = "dev"

// GitCommit is the short commit hash the binary was built from, also
// overridable via -ldflags.
var GitCommit = "unknown"

// String renders the full version string, e.g. "0.3.1 (a1b2c3d)".
func String() string {
	if GitCommit == "unknown" || GitCommit == "" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
