// Package version implements platform versions and Maven-style version ranges used to
// decide whether a package is compatible with the running platform.
package version

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// MaxComponent is the largest accepted value of a major, minor or build component.
const MaxComponent = 9999

const forbiddenChars = ",[]()\\"

// ErrInvalidFormat is returned when a version string cannot be parsed.
var ErrInvalidFormat = fmt.Errorf("invalid version format")

// PlatformVersion is an ordered major.minor.build version with an optional qualifier.
// Its comparison key is computed once and fully determines ordering and equality.
type PlatformVersion struct {
	major     int
	minor     int
	build     int
	qualifier string
	key       string
}

// New creates a PlatformVersion. Components above MaxComponent or below zero are reset to 0.
func New(major, minor, build int, qualifier string) PlatformVersion {
	v := PlatformVersion{
		major:     clamp(major),
		minor:     clamp(minor),
		build:     clamp(build),
		qualifier: strings.ToUpper(qualifier),
	}
	v.key = fmt.Sprintf("%04d.%04d.%04d", v.major, v.minor, v.build)
	if v.qualifier != "" {
		v.key += "-" + v.qualifier
	}
	return v
}

func clamp(n int) int {
	if n < 0 || n > MaxComponent {
		return 0
	}
	return n
}

// Parse parses major[.minor[.build]][-qualifier].
// Minor and build values above MaxComponent are dropped; the major component must be valid.
func Parse(s string) (PlatformVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PlatformVersion{}, fmt.Errorf("%w: empty version", ErrInvalidFormat)
	}
	if strings.ContainsAny(s, forbiddenChars) {
		return PlatformVersion{}, fmt.Errorf("%w: %q contains one of %q", ErrInvalidFormat, s, forbiddenChars)
	}

	numeric, qualifier, _ := strings.Cut(s, "-")
	if strings.IndexFunc(qualifier, unicode.IsSpace) >= 0 {
		return PlatformVersion{}, fmt.Errorf("%w: qualifier %q contains whitespace", ErrInvalidFormat, qualifier)
	}

	parts := strings.Split(numeric, ".")
	if len(parts) > 3 {
		return PlatformVersion{}, fmt.Errorf("%w: %q has more than three numeric components", ErrInvalidFormat, s)
	}

	var comps [3]int
	for i, p := range parts {
		n, err := parseComponent(p)
		if err != nil {
			return PlatformVersion{}, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
		}
		if n > MaxComponent {
			if i == 0 {
				return PlatformVersion{}, fmt.Errorf("%w: major %d exceeds %d", ErrInvalidFormat, n, MaxComponent)
			}
			n = 0
		}
		comps[i] = n
	}

	return New(comps[0], comps[1], comps[2], qualifier), nil
}

func parseComponent(p string) (int, error) {
	if p == "" {
		return 0, fmt.Errorf("empty component")
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("component %q is not numeric", p)
		}
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		// Only overflow can fail here; treat it as an oversized component.
		return MaxComponent + 1, nil //nolint:nilerr
	}
	return n, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) PlatformVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component.
func (v PlatformVersion) Major() int { return v.major }

// Minor returns the minor component.
func (v PlatformVersion) Minor() int { return v.minor }

// Build returns the build component.
func (v PlatformVersion) Build() int { return v.build }

// Qualifier returns the upper-cased qualifier, or "".
func (v PlatformVersion) Qualifier() string { return v.qualifier }

// Key returns the canonical comparison key.
func (v PlatformVersion) Key() string { return v.key }

// IsZero reports whether v is the zero value (never parsed or constructed).
func (v PlatformVersion) IsZero() bool { return v.key == "" }

// String returns major.minor.build[-qualifier].
func (v PlatformVersion) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.build)
	if v.qualifier != "" {
		s += "-" + v.qualifier
	}
	return s
}

// Compare returns -1, 0 or 1 depending on whether v sorts before, equal to or after o.
func (v PlatformVersion) Compare(o PlatformVersion) int {
	return strings.Compare(v.key, o.key)
}

// LessThan reports whether v < o.
func (v PlatformVersion) LessThan(o PlatformVersion) bool { return v.Compare(o) < 0 }

// GreaterThan reports whether v > o.
func (v PlatformVersion) GreaterThan(o PlatformVersion) bool { return v.Compare(o) > 0 }

// Equal reports whether v and o have the same comparison key.
func (v PlatformVersion) Equal(o PlatformVersion) bool { return v.key == o.key }

// MarshalText implements encoding.TextMarshaler.
func (v PlatformVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *PlatformVersion) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
