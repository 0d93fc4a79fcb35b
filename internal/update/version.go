package update

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// canonical returns the "v"-prefixed canonical semver form of s.
// Supports formats like "0.8.2", "v0.8.2", "0.9.0-rc.1"
func canonical(s string) (string, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return "", fmt.Errorf("invalid version format: %q", s)
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return "", fmt.Errorf("invalid version format: %s", s)
	}
	return semver.Canonical(v), nil
}

// ValidVersion reports whether s is a semantic version, with or without
// the "v" prefix.
func ValidVersion(s string) bool {
	_, err := canonical(s)
	return err == nil
}

// CompareVersions compares two version strings
// Returns:
//   - 1 if v1 > v2
//   - 0 if v1 == v2
//   - -1 if v1 < v2
//   - error if either version is invalid
func CompareVersions(v1, v2 string) (int, error) {
	c1, err := canonical(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1: %w", err)
	}
	c2, err := canonical(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2: %w", err)
	}
	return semver.Compare(c1, c2), nil
}

// NormalizeVersion removes the 'v' prefix if present
func NormalizeVersion(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}
