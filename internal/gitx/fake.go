package gitx

import (
	"context"
	"fmt"
	"strings"
)

// Fake is an in-memory Repository for tests and dry runs.
type Fake struct {
	// Branch is returned from CurrentBranch.
	Branch string
	// Commits is returned from CommitsSince; CommitsTouching filters it
	// through PathCommits when that is set.
	Commits []Commit
	// Files is returned from ChangedFilesSince regardless of ref.
	Files []ChangedFile
	// PathCommits maps a path prefix to the commits touching it.
	PathCommits map[string][]Commit
	// Contents maps "ref:path" to file contents for FileAt.
	Contents map[string][]byte
	// Err, when set, is returned from every call.
	Err error
}

var _ Repository = (*Fake)(nil)

func (f *Fake) CurrentBranch(ctx context.Context) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return f.Branch, nil
}

func (f *Fake) CommitsSince(ctx context.Context, since, until string) ([]Commit, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Commits, nil
}

func (f *Fake) ChangedFilesSince(ctx context.Context, ref string) ([]ChangedFile, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Files, nil
}

func (f *Fake) CommitsTouching(ctx context.Context, since, path string) ([]Commit, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.PathCommits == nil {
		return f.Commits, nil
	}
	for prefix, commits := range f.PathCommits {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(prefix, path) {
			return commits, nil
		}
	}
	return nil, nil
}

func (f *Fake) FileAt(ctx context.Context, ref, path string) ([]byte, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	data, ok := f.Contents[ref+":"+path]
	if !ok {
		return nil, fmt.Errorf("no content for %s:%s", ref, path)
	}
	return data, nil
}
