package changelog

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monorail-dev/monorail/internal/fsops"
	"github.com/monorail-dev/monorail/internal/gitx"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		message string
		want    Commit
	}{
		{
			"feat(auth)!: x",
			Commit{Type: "feat", Scope: "auth", Description: "x", Breaking: true},
		},
		{
			"random message",
			Commit{Type: "chore", Description: "random message"},
		},
		{
			"fix: handle empty token",
			Commit{Type: "fix", Description: "handle empty token"},
		},
		{
			"feat(core): add cache",
			Commit{Type: "feat", Scope: "core", Description: "add cache"},
		},
		{
			"refactor!: drop node 14",
			Commit{Type: "refactor", Description: "drop node 14", Breaking: true},
		},
		{
			"fix: tweak\n\nBREAKING CHANGE: config key renamed",
			Commit{Type: "fix", Description: "tweak", Breaking: true},
		},
		{
			"docs: multi\nline body ignored",
			Commit{Type: "docs", Description: "multi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMessage(tt.message))
		})
	}
}

func sampleCommits() []Commit {
	return ParseAll([]gitx.Commit{
		{Hash: "aaaaaaaaaaaa", Message: "feat(auth): add refresh tokens"},
		{Hash: "bbbbbbbbbbbb", Message: "fix: off-by-one in pager"},
		{Hash: "cccccccccccc", Message: "feat!: new plugin API"},
		{Hash: "dddddddddddd", Message: "weird unconforming commit"},
		{Hash: "eeeeeeeeeeee", Message: "wip: experiment"},
	})
}

func TestGroupByTypeUnknownLandsInOther(t *testing.T) {
	groups := groupCommits(sampleCommits(), GroupByType)

	var titles []string
	for _, g := range groups {
		titles = append(titles, g.title)
	}
	assert.Equal(t, []string{"Features", "Bug Fixes", "Chores", otherGroup}, titles)

	last := groups[len(groups)-1]
	require.Len(t, last.commits, 1)
	assert.Equal(t, "wip", last.commits[0].Type, "unknown type lands in Other Changes")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := Render(sampleCommits(), Options{
		Package:         "auth",
		Version:         "2.0.0",
		Date:            "2026-08-31",
		CompareURL:      "https://example.com/compare/v1.0.0...v2.0.0",
		BreakingSection: true,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "# Changelog\n"))
	assert.Contains(t, out, "## [2.0.0] - 2026-08-31")
	assert.Contains(t, out, "[Full diff](https://example.com/compare/v1.0.0...v2.0.0)")
	assert.Contains(t, out, "### BREAKING CHANGES")
	assert.Contains(t, out, "### Features")
	assert.Contains(t, out, "- **auth:** add refresh tokens (aaaaaaa)")
	assert.Contains(t, out, "### Other Changes")
	assert.Contains(t, out, footer)

	breakIdx := strings.Index(out, "### BREAKING CHANGES")
	featIdx := strings.Index(out, "### Features")
	assert.Less(t, breakIdx, featIdx, "breaking section renders first")
}

func TestRenderText(t *testing.T) {
	out, err := Render(sampleCommits(), Options{Version: "2.0.0", Date: "2026-08-31", Format: FormatText})
	require.NoError(t, err)

	assert.NotContains(t, out, "#", "text format carries no markdown")
	assert.Contains(t, out, "[BREAKING] new plugin API")
	assert.Contains(t, out, "auth: add refresh tokens")
}

func TestRenderJSON(t *testing.T) {
	out, err := Render(sampleCommits(), Options{
		Package:         "auth",
		Version:         "2.0.0",
		PreviousVersion: "1.0.0",
		Date:            "2026-08-31",
		Format:          FormatJSON,
	})
	require.NoError(t, err)

	var doc jsonChangelog
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "auth", doc.Metadata.Package)
	assert.Equal(t, "1.0.0", doc.Metadata.PreviousVersion)
	assert.Equal(t, 5, doc.Commits.Total)
	assert.Equal(t, 1, doc.Commits.BreakingChanges)
	assert.Equal(t, 2, doc.Commits.ByType["feat"])
	assert.Equal(t, 1, doc.Commits.ByType["chore"])
}

func TestManagerCreatesAndPrepends(t *testing.T) {
	fs := fsops.NewMemory()
	ctx := context.Background()
	m := NewManager(fs)

	first := []Commit{{Type: "feat", Description: "initial release", Hash: "aaaaaaaaaaaa"}}
	require.NoError(t, m.Update(ctx, "/ws/CHANGELOG.md", first,
		Options{Version: "1.0.0", Date: "2026-08-01"}))

	data, err := fs.ReadFile(ctx, "/ws/CHANGELOG.md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), preamble))
	assert.Contains(t, string(data), "## [1.0.0] - 2026-08-01")

	second := []Commit{{Type: "fix", Description: "patch the pager", Hash: "bbbbbbbbbbbb"}}
	require.NoError(t, m.Update(ctx, "/ws/CHANGELOG.md", second,
		Options{Version: "1.0.1", Date: "2026-08-31"}))

	data, err = fs.ReadFile(ctx, "/ws/CHANGELOG.md")
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, preamble), "preamble preserved")
	newIdx := strings.Index(content, "## [1.0.1]")
	oldIdx := strings.Index(content, "## [1.0.0]")
	require.GreaterOrEqual(t, newIdx, 0)
	require.GreaterOrEqual(t, oldIdx, 0)
	assert.Less(t, newIdx, oldIdx, "new section prepended above the old one")
}

func TestMergeWithCustomPreamble(t *testing.T) {
	existing := "# Release Notes\n\nHand-written intro.\n\n## [1.0.0] - 2026-08-01\n\n- old\n"
	merged := merge(existing, "## [1.1.0] - 2026-08-31\n\n- new\n\n")

	assert.True(t, strings.HasPrefix(merged, "# Release Notes\n\nHand-written intro.\n"))
	assert.Less(t, strings.Index(merged, "## [1.1.0]"), strings.Index(merged, "## [1.0.0]"))
}
