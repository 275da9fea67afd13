package gitx

import (
	"context"
	"time"
)

// ChangeKind classifies how a file changed between two revisions.
type ChangeKind string

const (
	// ChangeAdded indicates the file was created.
	ChangeAdded ChangeKind = "added"
	// ChangeModified indicates the file content changed.
	ChangeModified ChangeKind = "modified"
	// ChangeDeleted indicates the file was removed.
	ChangeDeleted ChangeKind = "deleted"
	// ChangeRenamed indicates the file was moved.
	ChangeRenamed ChangeKind = "renamed"
)

// ChangedFile is one file changed in a revision range.
type ChangedFile struct {
	// Path is the repository-relative path (the new path for renames).
	Path string `json:"path"`
	// Kind is how the file changed.
	Kind ChangeKind `json:"kind"`
	// OldPath is the previous path for renames, empty otherwise.
	OldPath string `json:"old_path,omitempty"`
}

// Commit is one commit reachable in a revision range.
type Commit struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	AuthorDate  time.Time `json:"author_date"`
}

// Repository is the git capability the platform depends on. The
// production implementation shells out to the git CLI; tests use an
// in-memory fake.
type Repository interface {
	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context) (string, error)

	// CommitsSince returns commits in (since, until], newest first.
	// An empty until means HEAD; an empty since means all history.
	CommitsSince(ctx context.Context, since, until string) ([]Commit, error)

	// ChangedFilesSince returns the files changed between ref and HEAD.
	ChangedFilesSince(ctx context.Context, ref string) ([]ChangedFile, error)

	// CommitsTouching returns the commits in (since, HEAD] that changed
	// files under path.
	CommitsTouching(ctx context.Context, since, path string) ([]Commit, error)

	// FileAt returns the contents of path at the given revision.
	FileAt(ctx context.Context, ref, path string) ([]byte, error)
}
