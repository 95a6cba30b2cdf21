// Package version provides build version information for llmdialog.
// These variables are set at build time via ldflags.
package version

import "fmt"

// Build information variables - set via ldflags.
// Example: go build -ldflags "-X llmdialog/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version (e.g., "v1.2.3" or "dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the multi-line banner printed by -version.
func String(program string) string {
	return fmt.Sprintf("%s %s\n  commit: %s\n  built:  %s\n", program, Version, Commit, Date)
}
