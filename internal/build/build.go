// Package build carries build-time version information.
package build

// Version is the release version, overridden at link time via
// -ldflags "-X go.trai.ch/mason/internal/build.Version=...".
var Version = "dev"
