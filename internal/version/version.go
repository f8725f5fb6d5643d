// Package version carries the build version, overridable at link time.
package version

// Version is set via -ldflags "-X icc.tech/pcap-bridge/internal/version.Version=...".
var Version = "0.1.0"
