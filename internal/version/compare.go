package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckSchemaCompatibility checks whether a run configuration written
// against configSchema can be read by an engine speaking engineSchema.
// Returns nil if compatible, error with details if not.
//
// Compatibility Rules:
//   - If either version is "main" (development build), the check is skipped
//   - Major versions must match exactly
//   - Minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 reads a 1.2.5 config)
func CheckSchemaCompatibility(engineSchema, configSchema string) error {
	engineSchema = strings.TrimPrefix(engineSchema, "v")
	configSchema = strings.TrimPrefix(configSchema, "v")

	// Skip version check for "main" (development builds)
	if engineSchema == "main" || configSchema == "main" {
		return nil
	}

	engineSemver, err := semver.NewVersion(engineSchema)
	if err != nil {
		return fmt.Errorf("invalid engine schema version '%s': %w", engineSchema, err)
	}

	configSemver, err := semver.NewVersion(configSchema)
	if err != nil {
		return fmt.Errorf("invalid config schema version '%s': %w", configSchema, err)
	}

	if engineSemver.Major() != configSemver.Major() {
		return fmt.Errorf("major schema mismatch: engine reads %d.x.x but config declares %d.x.x",
			engineSemver.Major(), configSemver.Major())
	}

	if engineSemver.Minor() != configSemver.Minor() {
		return fmt.Errorf("minor schema mismatch: engine reads %d.%d.x but config declares %d.%d.x",
			engineSemver.Major(), engineSemver.Minor(),
			configSemver.Major(), configSemver.Minor())
	}

	return nil
}
