// Package sitesync holds build information shared by the CLI and server.
package sitesync

// Version is the release version of sitesync.
const Version = "0.1.0"

// ModulePath is the Go module path.
const ModulePath = "github.com/mesh-intelligence/sitesync"
