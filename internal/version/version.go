package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version identifies one committed state of the tree. Versions are totally ordered
// by (Major, Minor).
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Baseline is the version recorded by init, before any sync.
var Baseline = Version{}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d", v.Major, v.Minor)
}

func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return cmpInt(v.Major, other.Major)
	default:
		return cmpInt(v.Minor, other.Minor)
	}
}

func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Parse accepts "v1.2", "1.2" and "v3" (minor 0).
func Parse(s string) (Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	majorStr, minorStr, hasMinor := strings.Cut(raw, ".")

	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	minor := 0
	if hasMinor {
		minor, err = strconv.Atoi(minorStr)
		if err != nil || minor < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
	}

	return Version{Major: major, Minor: minor}, nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
