package changes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monorail-dev/monorail/internal/gitx"
	"github.com/monorail-dev/monorail/internal/manifest"
	"github.com/monorail-dev/monorail/internal/workspace"
)

// testGraph builds auth <- ui <- cli, where ui depends on auth and cli
// depends on ui.
func testGraph() *workspace.Graph {
	mk := func(name string, deps ...string) *workspace.Package {
		m := &manifest.Manifest{Name: name, Version: "1.0.0", Dependencies: map[string]string{}}
		for _, d := range deps {
			m.Dependencies[d] = "^1.0.0"
		}
		return &workspace.Package{
			Manifest: m,
			AbsPath:  "/ws/packages/" + name,
			RelPath:  "packages/" + name,
		}
	}
	return workspace.NewGraph(workspace.KindYarnWorkspaces, "/ws", []*workspace.Package{
		mk("auth"),
		mk("ui", "auth"),
		mk("cli", "ui"),
	})
}

func TestDetectChangesAttribution(t *testing.T) {
	repo := &gitx.Fake{
		Files: []gitx.ChangedFile{
			{Path: "packages/auth/src/a.ts", Kind: gitx.ChangeModified},
			{Path: "docs/readme.md", Kind: gitx.ChangeModified},
		},
	}
	a := NewAnalyzer(repo, testGraph())

	analysis, err := a.DetectChangesSince(context.Background(), "main")
	require.NoError(t, err)

	require.Len(t, analysis.PackageChanges, 1)
	assert.Equal(t, "auth", analysis.PackageChanges[0].Package)
	assert.Equal(t, []string{"packages/auth/src/a.ts"}, analysis.PackageChanges[0].ChangedPaths)

	assert.Equal(t, map[string]struct{}{"auth": {}}, analysis.Affected.DirectlyAffected)
	assert.Equal(t, map[string]struct{}{"ui": {}, "cli": {}}, analysis.Affected.DependentsAffected)
	assert.Equal(t, 3, analysis.Affected.TotalAffectedCount)

	// Direct and dependent sets stay disjoint.
	for name := range analysis.Affected.DependentsAffected {
		_, direct := analysis.Affected.DirectlyAffected[name]
		assert.False(t, direct, "%s in both sets", name)
	}

	assert.True(t, analysis.Affected.Contains("cli"))
	assert.False(t, analysis.Affected.Contains("docs"))
}

func TestDetectChangesRootDependencyChange(t *testing.T) {
	repo := &gitx.Fake{
		Files: []gitx.ChangedFile{
			{Path: "package.json", Kind: gitx.ChangeModified},
		},
		Contents: map[string][]byte{
			"main:package.json": []byte(`{"private": true, "dependencies": {"typescript": "5.0.0"}}`),
			"HEAD:package.json": []byte(`{"private": true, "dependencies": {"typescript": "5.4.0"}}`),
		},
	}
	a := NewAnalyzer(repo, testGraph())

	analysis, err := a.DetectChangesSince(context.Background(), "main")
	require.NoError(t, err)

	require.Len(t, analysis.RootHints, 1)
	assert.Equal(t, HintUpgraded, analysis.RootHints[0].Kind)
	assert.Equal(t, "typescript", analysis.RootHints[0].Name)

	// A shared dependency shift reaches every package.
	assert.Len(t, analysis.Affected.DirectlyAffected, 3)
	assert.Empty(t, analysis.Affected.DependentsAffected)
	assert.Equal(t, 3, analysis.Affected.TotalAffectedCount)
}

func TestDetectChangesRootNonDependencyChange(t *testing.T) {
	repo := &gitx.Fake{
		Files: []gitx.ChangedFile{
			{Path: "package.json", Kind: gitx.ChangeModified},
		},
		Contents: map[string][]byte{
			"main:package.json": []byte(`{"private": true, "description": "old"}`),
			"HEAD:package.json": []byte(`{"private": true, "description": "new"}`),
		},
	}
	a := NewAnalyzer(repo, testGraph())

	analysis, err := a.DetectChangesSince(context.Background(), "main")
	require.NoError(t, err)

	assert.Empty(t, analysis.RootHints)
	assert.Empty(t, analysis.Affected.DirectlyAffected)
	assert.Zero(t, analysis.Affected.TotalAffectedCount)
}

func TestDetectChangesPackageManifestHints(t *testing.T) {
	repo := &gitx.Fake{
		Files: []gitx.ChangedFile{
			{Path: "packages/ui/package.json", Kind: gitx.ChangeModified},
		},
		Contents: map[string][]byte{
			"main:packages/ui/package.json": []byte(`{"name": "ui", "version": "1.0.0", "dependencies": {"auth": "^1.0.0", "left-pad": "1.3.0"}}`),
			"HEAD:packages/ui/package.json": []byte(`{"name": "ui", "version": "1.0.0", "dependencies": {"auth": "^1.0.0", "lodash": "4.17.21"}}`),
		},
	}
	a := NewAnalyzer(repo, testGraph())

	analysis, err := a.DetectChangesSince(context.Background(), "main")
	require.NoError(t, err)

	require.Len(t, analysis.PackageChanges, 1)
	hints := analysis.PackageChanges[0].Hints
	require.Len(t, hints, 2)
	assert.Equal(t, DependencyHint{Kind: HintRemoved, Section: "dependencies", Name: "left-pad", From: "1.3.0"}, hints[0])
	assert.Equal(t, DependencyHint{Kind: HintAdded, Section: "dependencies", Name: "lodash", To: "4.17.21"}, hints[1])
}

func TestDiffDependencies(t *testing.T) {
	base := &manifest.Manifest{
		Name: "x", Version: "1.0.0",
		Dependencies:    map[string]string{"a": "^1.0.0", "b": "2.0.0", "c": "3.1.0"},
		DevDependencies: map[string]string{"jest": "29.0.0"},
	}
	head := &manifest.Manifest{
		Name: "x", Version: "1.0.0",
		Dependencies:    map[string]string{"a": "^1.2.0", "c": "3.0.0", "d": "1.0.0"},
		DevDependencies: map[string]string{"jest": "29.0.0"},
	}

	hints := DiffDependencies(base, head)
	assert.Equal(t, []DependencyHint{
		{Kind: HintUpgraded, Section: "dependencies", Name: "a", From: "^1.0.0", To: "^1.2.0"},
		{Kind: HintRemoved, Section: "dependencies", Name: "b", From: "2.0.0"},
		{Kind: HintDowngraded, Section: "dependencies", Name: "c", From: "3.1.0", To: "3.0.0"},
		{Kind: HintAdded, Section: "dependencies", Name: "d", To: "1.0.0"},
	}, hints)
}

func TestSuggestBump(t *testing.T) {
	commit := func(msg string) gitx.Commit { return gitx.Commit{Hash: "abc", Message: msg} }

	tests := []struct {
		name    string
		commits []gitx.Commit
		files   []gitx.ChangedFile
		want    Significance
	}{
		{
			name:    "breaking marker wins",
			commits: []gitx.Commit{commit("feat(auth)!: drop token v1")},
			files:   []gitx.ChangedFile{{Path: "packages/auth/src/a.ts", Kind: gitx.ChangeModified}},
			want:    SignificanceMajor,
		},
		{
			name:    "breaking change body",
			commits: []gitx.Commit{commit("fix: tweak\n\nBREAKING CHANGE: removed option")},
			files:   []gitx.ChangedFile{{Path: "packages/auth/src/a.ts", Kind: gitx.ChangeModified}},
			want:    SignificanceMajor,
		},
		{
			name:    "feat commit",
			commits: []gitx.Commit{commit("feat: add refresh tokens")},
			files:   []gitx.ChangedFile{{Path: "packages/auth/src/a.ts", Kind: gitx.ChangeModified}},
			want:    SignificanceMinor,
		},
		{
			name:    "public api without feat",
			commits: []gitx.Commit{commit("refactor: reshape exports")},
			files:   []gitx.ChangedFile{{Path: "packages/auth/index.ts", Kind: gitx.ChangeModified}},
			want:    SignificanceMajor,
		},
		{
			name:    "public api with feat stays minor",
			commits: []gitx.Commit{commit("feat: new entry point")},
			files:   []gitx.ChangedFile{{Path: "packages/auth/index.ts", Kind: gitx.ChangeAdded}},
			want:    SignificanceMinor,
		},
		{
			name:    "lib tree without feat",
			commits: []gitx.Commit{commit("chore: regen")},
			files:   []gitx.ChangedFile{{Path: "packages/auth/lib/core.js", Kind: gitx.ChangeModified}},
			want:    SignificanceMajor,
		},
		{
			name:    "plain source change",
			commits: []gitx.Commit{commit("fix: off by one")},
			files:   []gitx.ChangedFile{{Path: "packages/auth/src/a.ts", Kind: gitx.ChangeModified}},
			want:    SignificancePatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &gitx.Fake{
				Files:       tt.files,
				PathCommits: map[string][]gitx.Commit{"packages/auth": tt.commits},
			}
			a := NewAnalyzer(repo, testGraph())

			analysis, err := a.DetectChangesSince(context.Background(), "main")
			require.NoError(t, err)
			require.Len(t, analysis.PackageChanges, 1)
			assert.Equal(t, tt.want, analysis.PackageChanges[0].SuggestedBump)
		})
	}
}

func TestCommitMarkerHelpers(t *testing.T) {
	assert.True(t, breakingCommit("feat!: x"))
	assert.True(t, breakingCommit("feat(scope)!: x"))
	assert.True(t, breakingCommit("fix: y\n\nBREAKING CHANGE: z"))
	assert.False(t, breakingCommit("feat: safe"))
	assert.False(t, breakingCommit("reverted! the thing"))

	assert.True(t, featCommit("feat: x"))
	assert.True(t, featCommit("feature(core): x"))
	assert.True(t, featCommit("feat(auth)!: x"))
	assert.False(t, featCommit("fix: x"))
	assert.False(t, featCommit("random message"))
}
