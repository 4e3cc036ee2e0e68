// Package version carries build metadata for the buildsight binaries,
// surfaced on /healthz and in startup logs. Values are stamped at link
// time:
//
//	go build -ldflags "-X github.com/sightline-data/buildsight/internal/version.GitSHA=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime records when the binary was linked.
	BuildTime = "unknown"
)
