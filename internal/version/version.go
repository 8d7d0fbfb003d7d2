package version

import "fmt"

// Build information set by ldflags
var (
	Version = "dev"     // Set by goreleaser: -X github.com/arthur-debert/pkgsync/internal/version.Version={{.Version}}
	Commit  = "unknown" // Set by goreleaser: -X github.com/arthur-debert/pkgsync/internal/version.Commit={{.Commit}}
	Date    = "unknown" // Set by goreleaser: -X github.com/arthur-debert/pkgsync/internal/version.Date={{.Date}}
)

// String renders the build information the way the version command prints it
func String() string {
	return fmt.Sprintf("pkgsync version %s\n  commit: %s\n  built:  %s\n", Version, Commit, Date)
}
