// Package fsops provides the filesystem capability the rest of the
// platform depends on. Components never touch the os package for file
// I/O directly; they take an FS, which keeps them testable against an
// in-memory filesystem.
package fsops

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FS is the filesystem capability: read, write, walk, exists.
type FS interface {
	// ReadFile reads the entire contents of a file.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to path atomically (temp file + rename).
	WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error

	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Walk walks the tree rooted at root, calling fn for every file and
	// directory. fn may return fs.SkipDir to prune a subtree.
	Walk(ctx context.Context, root string, fn filepath.WalkFunc) error

	// Glob returns the paths matching pattern relative to the fs root,
	// using filepath.Match per path segment.
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// aferoFS implements FS over an afero backend.
type aferoFS struct {
	fs afero.Fs
}

// New wraps an afero filesystem in the FS capability.
func New(backend afero.Fs) FS {
	return &aferoFS{fs: backend}
}

// NewOS returns the production filesystem.
func NewOS() FS {
	return New(afero.NewOsFs())
}

// NewMemory returns an in-memory filesystem for tests.
func NewMemory() FS {
	return New(afero.NewMemMapFs())
}

func (a *aferoFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes via a temp file in the target directory followed by a
// rename, so readers never observe a half-written manifest.
func (a *aferoFS) WriteFile(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(a.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		a.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := a.fs.Chmod(tmpName, perm); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := a.fs.Rename(tmpName, path); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (a *aferoFS) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := afero.Exists(a.fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

func (a *aferoFS) Walk(ctx context.Context, root string, fn filepath.WalkFunc) error {
	return afero.Walk(a.fs, root, func(path string, info fs.FileInfo, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return fn(path, info, err)
	})
}

func (a *aferoFS) Glob(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := afero.Glob(a.fs, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	return matches, nil
}
