package version

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/kvasir-vcs/kvasir/internal/version.Version=...".
var Version = "dev"
