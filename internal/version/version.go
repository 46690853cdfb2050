package version

var (
	// Version is the current application version.
	// The build system may set it via ldflags; otherwise it keeps the literal below.
	Version = "v0.1.0" // Fallback when not set via ldflags

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
