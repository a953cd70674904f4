package ir

// Version constants for hashed artifacts.
const (
	// FormatVersion is the version of the generated view format.
	FormatVersion = "1"

	// GeneratorVersion is the viewgen version recorded with each run.
	GeneratorVersion = "0.1.0"
)
