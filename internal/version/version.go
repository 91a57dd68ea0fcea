package version

// Version is the current release, overridden at build time via
// -ldflags "-X sma/internal/version.Version=...".
var Version = "0.3.0-dev"
