// Package version provides IPbus protocol version parsing, comparison and
// URI scheme helpers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the default protocol version used when none is requested.
const Current = "2.0"

// SchemePrefix starts every IPbus URI scheme ("ipbustcp-2.0").
const SchemePrefix = "ipbus"

// Well-known protocol versions.
var (
	IPbus13 = Version{Major: 1, Minor: 3}
	IPbus20 = Version{Major: 2, Minor: 0}
)

// Version represents a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Scheme returns the URI scheme for a transport and version, e.g.
// Scheme("tcp", IPbus20) == "ipbustcp-2.0".
func Scheme(transport string, v Version) string {
	return fmt.Sprintf("%s%s-%s", SchemePrefix, transport, v)
}

// ParseScheme splits an IPbus URI scheme into its transport and version.
func ParseScheme(scheme string) (string, Version, error) {
	rest, ok := strings.CutPrefix(strings.ToLower(scheme), SchemePrefix)
	if !ok {
		return "", Version{}, fmt.Errorf("not an IPbus scheme: %q", scheme)
	}

	transport, ver, ok := strings.Cut(rest, "-")
	if !ok || transport == "" {
		return "", Version{}, fmt.Errorf("missing transport or version in scheme %q", scheme)
	}

	v, err := Parse(ver)
	if err != nil {
		return "", Version{}, fmt.Errorf("scheme %q: %w", scheme, err)
	}

	return transport, v, nil
}

// Supported returns the protocol versions this library can serialize.
func Supported() []Version {
	return []Version{IPbus13, IPbus20}
}
