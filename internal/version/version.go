// Package version records build information for tilt.
package version

// Version is the application version. Overridden at build time via
// -ldflags "-X github.com/aristath/tilt/internal/version.Version=v1.2.3".
var Version = "dev"
