package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{"plain", "1.2.3", Version{Major: 1, Minor: 2, Patch: 3}, false},
		{"zero", "0.0.0", Version{}, false},
		{"prerelease", "1.2.3-alpha.1", Version{Major: 1, Minor: 2, Patch: 3, Prerelease: "alpha.1"}, false},
		{"build", "1.2.3+build.5", Version{Major: 1, Minor: 2, Patch: 3, Build: "build.5"}, false},
		{"both", "1.2.3-rc.1+sha.abc", Version{Major: 1, Minor: 2, Patch: 3, Prerelease: "rc.1", Build: "sha.abc"}, false},
		{"missing patch", "1.2", Version{}, true},
		{"leading v", "v1.2.3", Version{}, true},
		{"garbage", "not-a-version", Version{}, true},
		{"empty", "", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"1.2.3", "0.1.0-beta.2", "2.0.0+exp.sha", "1.0.0-rc.1+build.9"} {
		v, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, s, v.String())
	}
}

func TestBumps(t *testing.T) {
	v := MustParse("1.2.3")
	assert.Equal(t, "2.0.0", v.BumpMajor().String())
	assert.Equal(t, "1.3.0", v.BumpMinor().String())
	assert.Equal(t, "1.2.4", v.BumpPatch().String())
}

func TestBumpsDropPrereleaseAndBuild(t *testing.T) {
	v := MustParse("1.2.3-alpha.1+build.7")
	assert.Equal(t, "2.0.0", v.BumpMajor().String())
	assert.Equal(t, "1.3.0", v.BumpMinor().String())
	assert.Equal(t, "1.2.4", v.BumpPatch().String())
}

func TestBumpSnapshot(t *testing.T) {
	v := MustParse("1.2.3")

	s0 := v.BumpSnapshot("alpha", nil)
	assert.Equal(t, "1.2.3-alpha.0", s0.String())

	// Repeating with the previous result in history strictly increments.
	s1 := v.BumpSnapshot("alpha", []string{s0.String()})
	assert.Equal(t, "1.2.3-alpha.1", s1.String())

	s2 := v.BumpSnapshot("alpha", []string{s0.String(), s1.String(), "1.2.3-beta.9"})
	assert.Equal(t, "1.2.3-alpha.2", s2.String())

	// History for a different base version does not count.
	s := v.BumpSnapshot("alpha", []string{"9.9.9-alpha.4"})
	assert.Equal(t, "1.2.3-alpha.0", s.String())
}

func TestSnapshotOrdersBelowPatch(t *testing.T) {
	v := MustParse("1.2.3")
	snap := v.BumpSnapshot("alpha", nil)
	patch := v.BumpPatch()
	assert.Negative(t, Compare(snap, patch))
	// A snapshot of 1.2.3 still sorts below the release it derives from.
	assert.Negative(t, Compare(snap, v))
}

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(MustParse("1.2.3"), MustParse("1.2.4")))
	assert.Positive(t, Compare(MustParse("2.0.0"), MustParse("1.9.9")))
	assert.Zero(t, Compare(MustParse("1.2.3+a"), MustParse("1.2.3+b")))
}
