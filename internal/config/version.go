package config

// Version is the clustermap binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/clustermap/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
