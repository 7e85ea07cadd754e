package version

import (
	"fmt"
	"strings"
)

// ErrInvalidRange is returned when a range specification cannot be parsed or is inconsistent.
var ErrInvalidRange = fmt.Errorf("invalid version range")

// PlatformVersionRange is an interval of versions. A nil bound is unbounded on that side.
type PlatformVersionRange struct {
	Low           *PlatformVersion
	LowInclusive  bool
	High          *PlatformVersion
	HighInclusive bool
}

// Everything is the unbounded range.
var Everything = PlatformVersionRange{}

// ParseRange parses Maven-style interval syntax such as "[1.0,2.0)", "(,3]" or "[1.2.3]".
// A spec without a comma pins a single version and must use closed brackets on both ends.
func ParseRange(spec string) (PlatformVersionRange, error) {
	s := strings.TrimSpace(spec)
	if len(s) < 2 {
		return PlatformVersionRange{}, fmt.Errorf("%w: %q is too short", ErrInvalidRange, spec)
	}

	open, closing := s[0], s[len(s)-1]
	if (open != '[' && open != '(') || (closing != ']' && closing != ')') {
		return PlatformVersionRange{}, fmt.Errorf("%w: %q must start with [ or ( and end with ] or )", ErrInvalidRange, spec)
	}
	inner := s[1 : len(s)-1]

	if !strings.Contains(inner, ",") {
		if open != '[' || closing != ']' {
			return PlatformVersionRange{}, fmt.Errorf("%w: single version %q must be enclosed in [ and ]", ErrInvalidRange, spec)
		}
		v, err := Parse(inner)
		if err != nil {
			return PlatformVersionRange{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
		}
		return PlatformVersionRange{Low: &v, LowInclusive: true, High: &v, HighInclusive: true}, nil
	}

	lowStr, highStr, _ := strings.Cut(inner, ",")
	if strings.Contains(highStr, ",") {
		return PlatformVersionRange{}, fmt.Errorf("%w: %q has more than two bounds", ErrInvalidRange, spec)
	}

	r := PlatformVersionRange{LowInclusive: open == '[', HighInclusive: closing == ']'}
	var err error
	if r.Low, err = parseBound(lowStr); err != nil {
		return PlatformVersionRange{}, err
	}
	if r.High, err = parseBound(highStr); err != nil {
		return PlatformVersionRange{}, err
	}

	if r.Low != nil && r.High != nil {
		switch c := r.Low.Compare(*r.High); {
		case c > 0:
			return PlatformVersionRange{}, fmt.Errorf("%w: lower bound %s is above upper bound %s", ErrInvalidRange, r.Low, r.High)
		case c == 0 && (!r.LowInclusive || !r.HighInclusive):
			return PlatformVersionRange{}, fmt.Errorf("%w: identical bounds in %q must both be inclusive", ErrInvalidRange, spec)
		}
	}
	return r, nil
}

func parseBound(s string) (*PlatformVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	return &v, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(spec string) PlatformVersionRange {
	r, err := ParseRange(spec)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether v lies within the range.
func (r PlatformVersionRange) Contains(v PlatformVersion) bool {
	if r.Low != nil {
		c := v.Compare(*r.Low)
		if c < 0 || (c == 0 && !r.LowInclusive) {
			return false
		}
	}
	if r.High != nil {
		c := v.Compare(*r.High)
		if c > 0 || (c == 0 && !r.HighInclusive) {
			return false
		}
	}
	return true
}

// IsEverything reports whether the range has no bounds.
func (r PlatformVersionRange) IsEverything() bool {
	return r.Low == nil && r.High == nil
}

// String renders the range in the syntax accepted by ParseRange.
func (r PlatformVersionRange) String() string {
	if r.Low != nil && r.High != nil && r.Low.Equal(*r.High) && r.LowInclusive && r.HighInclusive {
		return "[" + r.Low.String() + "]"
	}
	var b strings.Builder
	if r.LowInclusive {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.Low != nil {
		b.WriteString(r.Low.String())
	}
	b.WriteByte(',')
	if r.High != nil {
		b.WriteString(r.High.String())
	}
	if r.HighInclusive {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}
