// Package version holds build metadata.
package version

// Version is overridden at build time via -ldflags "-X .../version.Version=...".
var Version = "dev"
