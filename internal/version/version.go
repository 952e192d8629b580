package version

const AppName = "sphexbot"

// Version is overridden at build time with -ldflags "-X sphexbot/internal/version.Version=...".
var Version = "dev"
