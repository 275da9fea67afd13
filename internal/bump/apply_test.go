package bump

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/monorail-dev/monorail/internal/fsops"
	"github.com/monorail-dev/monorail/internal/workspace"
)

// seedManifests writes the libGraph manifests into a memory filesystem.
func seedManifests(t *testing.T, fs fsops.FS) {
	t.Helper()
	ctx := context.Background()
	files := map[string]string{
		"/ws/packages/lib/package.json": `{
  "name": "lib",
  "version": "1.0.0",
  "description": "shared core"
}`,
		"/ws/packages/ui/package.json": `{
  "name": "ui",
  "version": "1.0.0",
  "dependencies": {"lib": "^1.0.0"}
}`,
		"/ws/packages/viewer/package.json": `{
  "name": "viewer",
  "version": "1.0.0",
  "dependencies": {"lib": "workspace:1.0.0", "ui": "1.0.0"}
}`,
	}
	for path, content := range files {
		require.NoError(t, fs.WriteFile(ctx, path, []byte(content), 0o644))
	}
}

func TestExecuteApplyBreakingCascade(t *testing.T) {
	fs := fsops.NewMemory()
	seedManifests(t, fs)
	cache := workspace.NewCache(5 * time.Minute)
	g := libGraph()
	cache.Store(g.Packages)

	b := New(g, fs, cache, Config{Mode: ModeIndividual, SyncOnMajorBump: true})
	report, err := b.Execute(context.Background(), ChangeSet{
		Targets: map[string]Strategy{"lib": Major()},
		Mode:    ModeApply,
	})
	require.NoError(t, err)
	assert.Empty(t, report.Errors)

	ctx := context.Background()
	lib, err := fs.ReadFile(ctx, "/ws/packages/lib/package.json")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", gjson.GetBytes(lib, "version").String())
	assert.Equal(t, "shared core", gjson.GetBytes(lib, "description").String(),
		"untouched fields survive the rewrite")

	ui, err := fs.ReadFile(ctx, "/ws/packages/ui/package.json")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", gjson.GetBytes(ui, "version").String())
	assert.Equal(t, "^2.0.0", gjson.GetBytes(ui, "dependencies.lib").String())

	viewer, err := fs.ReadFile(ctx, "/ws/packages/viewer/package.json")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", gjson.GetBytes(viewer, "version").String())
	assert.Equal(t, "workspace:2.0.0", gjson.GetBytes(viewer, "dependencies.lib").String())
	assert.Equal(t, "2.0.0", gjson.GetBytes(viewer, "dependencies.ui").String())

	assert.Zero(t, cache.Len(), "apply invalidates the discovery cache")
}

func TestPreviewMatchesApply(t *testing.T) {
	fs := fsops.NewMemory()
	seedManifests(t, fs)

	cs := ChangeSet{Targets: map[string]Strategy{"lib": Patch()}}

	preview, err := New(libGraph(), fs, nil, DefaultConfig()).
		Execute(context.Background(), cs)
	require.NoError(t, err)

	cs.Mode = ModeApply
	applied, err := New(libGraph(), fs, nil, DefaultConfig()).
		Execute(context.Background(), cs)
	require.NoError(t, err)

	assert.Equal(t, preview.PrimaryBumps, applied.PrimaryBumps)
	assert.Equal(t, preview.CascadeBumps, applied.CascadeBumps)
	assert.ElementsMatch(t, preview.ReferenceUpdates, applied.ReferenceUpdates)

	// The filesystem matches the predictions.
	ctx := context.Background()
	for name, path := range map[string]string{
		"lib":    "/ws/packages/lib/package.json",
		"ui":     "/ws/packages/ui/package.json",
		"viewer": "/ws/packages/viewer/package.json",
	} {
		data, err := fs.ReadFile(ctx, path)
		require.NoError(t, err)
		want, ok := preview.NewVersion(name)
		require.True(t, ok)
		assert.Equal(t, want, gjson.GetBytes(data, "version").String(), name)
	}
}

func TestExecutePreviewTouchesNothing(t *testing.T) {
	fs := fsops.NewMemory()
	seedManifests(t, fs)

	b := New(libGraph(), fs, nil, DefaultConfig())
	_, err := b.Execute(context.Background(), ChangeSet{
		Targets: map[string]Strategy{"lib": Major()},
		Mode:    ModePreview,
	})
	require.NoError(t, err)

	data, err := fs.ReadFile(context.Background(), "/ws/packages/lib/package.json")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", gjson.GetBytes(data, "version").String())
}

func TestExecuteApplyBestEffort(t *testing.T) {
	fs := fsops.NewMemory()
	seedManifests(t, fs)
	// Break one manifest so its write fails at the read step.
	require.NoError(t, fs.WriteFile(context.Background(),
		"/ws/packages/ui/package.json", []byte("{not json"), 0o644))

	b := New(libGraph(), fs, nil, Config{Mode: ModeIndividual, SyncOnMajorBump: true})
	report, err := b.Execute(context.Background(), ChangeSet{
		Targets: map[string]Strategy{"lib": Major()},
		Mode:    ModeApply,
	})
	require.NoError(t, err, "write failures are reported, not returned")
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "ui")

	// The sibling writes still happened.
	data, err := fs.ReadFile(context.Background(), "/ws/packages/lib/package.json")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", gjson.GetBytes(data, "version").String())

	viewer, err := fs.ReadFile(context.Background(), "/ws/packages/viewer/package.json")
	require.NoError(t, err)
	assert.Equal(t, "workspace:2.0.0", gjson.GetBytes(viewer, "dependencies.lib").String())
}
