package version

// Version is the current version of the backsim library.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/stratlab/backsim/internal/version.Version=1.2.3"
var Version = "v0.4.0"

// SchemaVersion is the configuration schema version this build reads.
// Run configuration files declare the schema they were written against;
// see CheckSchemaCompatibility for the acceptance rules.
const SchemaVersion = "1.0.0"

// GetVersion returns the current version of the library.
func GetVersion() string {
	return Version
}
