package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an RPM epoch:version-release triple.
//
// An empty Release means the release was not specified. That only matters
// for dependency ranges, where a missing release matches any release.
type Version struct {
	Epoch   int
	Version string
	Release string
}

// ParseVersion parses "[epoch:]version[-release]".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}
	if strings.ContainsAny(s, " \t\n") {
		return Version{}, fmt.Errorf("invalid version %q: contains whitespace", s)
	}

	var v Version
	if i := strings.IndexByte(s, ':'); i >= 0 {
		epoch, err := strconv.Atoi(s[:i])
		if err != nil || epoch < 0 {
			return Version{}, fmt.Errorf("invalid epoch in version %q", s)
		}
		v.Epoch = epoch
		s = s[i+1:]
	}

	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		if i == len(s)-1 {
			return Version{}, fmt.Errorf("invalid version %q: empty release", s)
		}
		v.Release = s[i+1:]
		s = s[:i]
	}
	if s == "" {
		return Version{}, fmt.Errorf("invalid version: empty upstream version")
	}
	v.Version = s
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for
// tests and constant tables.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version the way rpm does, omitting a zero epoch.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch > 0 {
		b.WriteString(strconv.Itoa(v.Epoch))
		b.WriteByte(':')
	}
	b.WriteString(v.Version)
	if v.Release != "" {
		b.WriteByte('-')
		b.WriteString(v.Release)
	}
	return b.String()
}

// Compare orders two package versions: epoch numerically, then version and
// release with Vercmp. It returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	if v.Epoch != o.Epoch {
		if v.Epoch < o.Epoch {
			return -1
		}
		return 1
	}
	if c := Vercmp(v.Version, o.Version); c != 0 {
		return c
	}
	return Vercmp(v.Release, o.Release)
}

// compareForRange compares like Compare, except that the release is only
// taken into account when both sides carry one.
func (v Version) compareForRange(o Version) int {
	if v.Epoch != o.Epoch {
		if v.Epoch < o.Epoch {
			return -1
		}
		return 1
	}
	if c := Vercmp(v.Version, o.Version); c != 0 {
		return c
	}
	if v.Release == "" || o.Release == "" {
		return 0
	}
	return Vercmp(v.Release, o.Release)
}

// Vercmp compares two version or release strings segment by segment.
//
// Both strings are split into alternating runs of digits and letters;
// everything else is a separator. Digit runs compare numerically, letter
// runs lexically, and a digit run is newer than a letter run. '~' sorts
// before anything, even the end of the string; '^' sorts after the end of
// the string but before any other segment.
func Vercmp(a, b string) int {
	if a == b {
		return 0
	}

	one, two := a, b
	for one != "" || two != "" {
		one = trimSeparators(one)
		two = trimSeparators(two)

		if strings.HasPrefix(one, "~") || strings.HasPrefix(two, "~") {
			if !strings.HasPrefix(one, "~") {
				return 1
			}
			if !strings.HasPrefix(two, "~") {
				return -1
			}
			one, two = one[1:], two[1:]
			continue
		}

		if strings.HasPrefix(one, "^") || strings.HasPrefix(two, "^") {
			if one == "" {
				return -1
			}
			if two == "" {
				return 1
			}
			if !strings.HasPrefix(one, "^") {
				return 1
			}
			if !strings.HasPrefix(two, "^") {
				return -1
			}
			one, two = one[1:], two[1:]
			continue
		}

		if one == "" || two == "" {
			break
		}

		isNum := isDigit(one[0])
		var seg1, seg2 string
		if isNum {
			seg1, one = span(one, isDigit)
			seg2, two = span(two, isDigit)
		} else {
			seg1, one = span(one, isAlpha)
			seg2, two = span(two, isAlpha)
		}

		if seg2 == "" {
			// Segments of different types: numeric is newer.
			if isNum {
				return 1
			}
			return -1
		}

		if isNum {
			seg1 = strings.TrimLeft(seg1, "0")
			seg2 = strings.TrimLeft(seg2, "0")
			if len(seg1) != len(seg2) {
				if len(seg1) < len(seg2) {
					return -1
				}
				return 1
			}
		}

		if c := strings.Compare(seg1, seg2); c != 0 {
			return c
		}
	}

	switch {
	case one == "" && two == "":
		return 0
	case one == "":
		return -1
	default:
		return 1
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func trimSeparators(s string) string {
	i := 0
	for i < len(s) {
		c := s[i]
		if isDigit(c) || isAlpha(c) || c == '~' || c == '^' {
			break
		}
		i++
	}
	return s[i:]
}

func span(s string, pred func(byte) bool) (string, string) {
	i := 0
	for i < len(s) && pred(s[i]) {
		i++
	}
	return s[:i], s[i:]
}
