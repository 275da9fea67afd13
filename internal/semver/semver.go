// Package semver implements the version arithmetic used by the cascade
// bumper: parsing, comparison, and the four bump operations.
//
// Parsing is strict semver 2.0.0 (validated through golang.org/x/mod/semver).
// Major, minor, and patch bumps drop any pre-release and build metadata;
// snapshot bumps keep the base version and append a monotonically
// increasing "-{id}.{N}" suffix.
package semver

import (
	"fmt"
	"strconv"
	"strings"

	xsemver "golang.org/x/mod/semver"
)

// ErrInvalid indicates a string that does not parse as semver.
var ErrInvalid = fmt.Errorf("invalid semver")

// Version is a parsed semantic version.
type Version struct {
	// Major, Minor, Patch are the numeric core of the version.
	Major int
	Minor int
	Patch int
	// Prerelease is the pre-release identifier without the leading '-'.
	Prerelease string
	// Build is the build metadata without the leading '+'.
	Build string
}

// Parse parses a semver string like "1.2.3-alpha.1+build.5".
func Parse(s string) (Version, error) {
	if !xsemver.IsValid("v" + s) {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}

	rest := s
	var build string
	if i := strings.IndexByte(rest, '+'); i >= 0 {
		build = rest[i+1:]
		rest = rest[:i]
	}
	var pre string
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		pre = rest[i+1:]
		rest = rest[:i]
	}

	parts := strings.SplitN(rest, ".", 3)
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
		nums[i] = n
	}

	return Version{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		Prerelease: pre,
		Build:      build,
	}, nil
}

// MustParse parses s and panics on error. For tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version back to its canonical form.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// Compare returns -1, 0, or +1 per semver precedence rules.
// Build metadata does not participate in precedence.
func Compare(a, b Version) int {
	return xsemver.Compare("v"+a.String(), "v"+b.String())
}

// IsValid reports whether s parses as a semantic version.
func IsValid(s string) bool {
	return xsemver.IsValid("v" + s)
}

// BumpMajor returns (M+1).0.0, dropping pre-release and build metadata.
func (v Version) BumpMajor() Version {
	return Version{Major: v.Major + 1}
}

// BumpMinor returns M.(m+1).0, dropping pre-release and build metadata.
func (v Version) BumpMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// BumpPatch returns M.m.(p+1), dropping pre-release and build metadata.
func (v Version) BumpPatch() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
}

// BumpSnapshot returns M.m.p-{id}.{N} where N is one past the highest
// integer suffix already present in history for the same base and
// identifier, or 0 when none exists. The base core version is kept.
func (v Version) BumpSnapshot(id string, history []string) Version {
	base := Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
	prefix := fmt.Sprintf("%d.%d.%d-%s.", v.Major, v.Minor, v.Patch, id)

	next := 0
	for _, h := range history {
		rest, ok := strings.CutPrefix(h, prefix)
		if !ok {
			continue
		}
		// Build metadata after the counter does not affect it.
		if i := strings.IndexByte(rest, '+'); i >= 0 {
			rest = rest[:i]
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}

	base.Prerelease = fmt.Sprintf("%s.%d", id, next)
	return base
}
