// ABOUTME: Version information for audiosock
// ABOUTME: Overridden at build time with -ldflags "-X .../internal/version.Version=..."
package version

// Version is the release version, "dev" for local builds
var Version = "dev"

// Product is the name reported by the version command
const Product = "audiosock"

// String returns the one-line version banner
func String() string {
	return Product + " " + Version
}
