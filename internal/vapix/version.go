package vapix

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a "major.minor" API version.
type Version struct {
	Major int
	Minor int
}

// ParseVersion parses "major.minor". A bare "major" has minor 0.
func ParseVersion(s string) (Version, error) {
	majorStr, minorStr, hasMinor := strings.Cut(strings.TrimSpace(s), ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	v := Version{Major: major}
	if hasMinor {
		minor, err := strconv.Atoi(minorStr)
		if err != nil || minor < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		v.Minor = minor
	}
	return v, nil
}

// MustParseVersion is ParseVersion for constants; it panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Supports reports whether an API at version v can serve a client written
// for want: same major, minor at least want's.
func (v Version) Supports(want Version) bool {
	return v.Major == want.Major && v.Minor >= want.Minor
}

// SupportsVersion reports whether any of the advertised versions supports
// want. Unparsable entries are ignored.
func SupportsVersion(advertised []string, want Version) bool {
	for _, s := range advertised {
		v, err := ParseVersion(s)
		if err != nil {
			continue
		}
		if v.Supports(want) {
			return true
		}
	}
	return false
}

// RequireVersion returns ErrUnsupportedVersion unless advertised supports want.
func RequireVersion(api string, advertised []string, want Version) error {
	if SupportsVersion(advertised, want) {
		return nil
	}
	return fmt.Errorf("%w: %s %s (device offers %v)", ErrUnsupportedVersion, api, want, advertised)
}
