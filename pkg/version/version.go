// Package version wraps semantic version parsing and the minimum-host-version
// check used during descriptor validation.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Parse parses a major.minor.patch version string. Prerelease and build
// metadata are accepted and carried through; the minimum-host comparison
// ignores them.
func Parse(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return v, nil
}

// CheckHostCompatibility verifies that the running host version satisfies an
// extension's declared minimum. An empty minimum means no constraint. The
// comparison is component-wise on (major, minor, patch).
func CheckHostCompatibility(hostVersion *semver.Version, minHostRaw string) error {
	if minHostRaw == "" {
		return nil
	}
	min, err := Parse(minHostRaw)
	if err != nil {
		return fmt.Errorf("invalid minimum host version: %w", err)
	}
	host := *hostVersion
	if host.Prerelease() != "" || host.Metadata() != "" {
		// Compare release components only so a host prerelease build does
		// not sort below its own release number.
		host = *semver.New(hostVersion.Major(), hostVersion.Minor(), hostVersion.Patch(), "", "")
	}
	if host.LessThan(min) {
		return fmt.Errorf("host version %s is below required minimum %s", hostVersion, min)
	}
	return nil
}
