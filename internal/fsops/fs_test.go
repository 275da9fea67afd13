package fsops

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadExists(t *testing.T) {
	ctx := context.Background()
	f := NewMemory()

	ok, err := f.Exists(ctx, "/ws/package.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.WriteFile(ctx, "/ws/package.json", []byte(`{"name":"a"}`), 0644))

	ok, err = f.Exists(ctx, "/ws/package.json")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := f.ReadFile(ctx, "/ws/package.json")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"a"}`, string(data))
}

func TestWriteOverwrites(t *testing.T) {
	ctx := context.Background()
	f := NewMemory()
	require.NoError(t, f.WriteFile(ctx, "/x", []byte("one"), 0644))
	require.NoError(t, f.WriteFile(ctx, "/x", []byte("two"), 0644))
	data, err := f.ReadFile(ctx, "/x")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestWalkPrune(t *testing.T) {
	ctx := context.Background()
	f := NewMemory()
	for _, p := range []string{
		"/ws/packages/a/package.json",
		"/ws/node_modules/b/package.json",
		"/ws/packages/c/package.json",
	} {
		require.NoError(t, f.WriteFile(ctx, p, []byte("{}"), 0644))
	}

	var found []string
	err := f.Walk(ctx, "/ws", func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == "node_modules" {
			return filepath.SkipDir
		}
		if !info.IsDir() {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(found)
	assert.Equal(t, []string{"/ws/packages/a/package.json", "/ws/packages/c/package.json"}, found)
}

func TestReadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewMemory()
	_, err := f.ReadFile(ctx, "/anything")
	assert.ErrorIs(t, err, context.Canceled)
}
