// Package gitx implements the Repository capability over the git CLI.
package gitx

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Field and record separators for machine-readable git log output.
// %B carries the full raw message, body included, so breaking-change
// markers below the subject line survive parsing.
const (
	logFormat = "%H%x1f%B%x1f%an%x1f%ae%x1f%aI%x1e"
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// Repo implements Repository using the git CLI.
type Repo struct {
	// gitPath is the path to the git executable.
	gitPath string
	// root is the repository working directory.
	root string
}

// Open creates a Repo for the repository at root.
// It verifies that git is available on the system.
func Open(ctx context.Context, root string) (*Repo, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, gitPath, "-C", root, "rev-parse", "--git-dir")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", root, err)
	}

	return &Repo{gitPath: gitPath, root: root}, nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, "-C", r.root, "rev-parse", "--abbrev-ref", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed in %s: %w", r.root, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CommitsSince returns commits in (since, until], newest first.
func (r *Repo) CommitsSince(ctx context.Context, since, until string) ([]Commit, error) {
	if until == "" {
		until = "HEAD"
	}
	rangeSpec := until
	if since != "" {
		rangeSpec = since + ".." + until
	}

	cmd := exec.CommandContext(ctx, r.gitPath, "-C", r.root,
		"log", "--format="+logFormat, rangeSpec)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log %s failed in %s: %w", rangeSpec, r.root, err)
	}
	return parseLogOutput(string(output))
}

// parseLogOutput parses the unit-separator delimited git log format.
func parseLogOutput(output string) ([]Commit, error) {
	var commits []Commit
	for _, record := range strings.Split(output, recordSep) {
		record = strings.TrimSpace(record)
		if record == "" {
			continue
		}
		fields := strings.Split(record, fieldSep)
		if len(fields) != 5 {
			continue
		}
		date, err := time.Parse(time.RFC3339, fields[4])
		if err != nil {
			return nil, fmt.Errorf("parse commit date %q: %w", fields[4], err)
		}
		commits = append(commits, Commit{
			Hash:        fields[0],
			Message:     strings.TrimSpace(fields[1]),
			AuthorName:  fields[2],
			AuthorEmail: fields[3],
			AuthorDate:  date,
		})
	}
	return commits, nil
}

// ChangedFilesSince returns the files changed between ref and HEAD,
// using --name-status for machine-readable output.
func (r *Repo) ChangedFilesSince(ctx context.Context, ref string) ([]ChangedFile, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, "-C", r.root,
		"diff", "--name-status", "-M", ref, "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff %s failed in %s: %w", ref, r.root, err)
	}

	var files []ChangedFile
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		file, ok := parseNameStatusLine(scanner.Text())
		if ok {
			files = append(files, file)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse git diff output: %w", err)
	}
	return files, nil
}

// CommitsTouching returns the commits in (since, HEAD] that changed
// files under path, newest first.
func (r *Repo) CommitsTouching(ctx context.Context, since, path string) ([]Commit, error) {
	rangeSpec := "HEAD"
	if since != "" {
		rangeSpec = since + "..HEAD"
	}
	cmd := exec.CommandContext(ctx, r.gitPath, "-C", r.root,
		"log", "--format="+logFormat, rangeSpec, "--", path)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git log %s -- %s failed in %s: %w", rangeSpec, path, r.root, err)
	}
	return parseLogOutput(string(output))
}

// FileAt returns the contents of path at the given revision.
func (r *Repo) FileAt(ctx context.Context, ref, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.gitPath, "-C", r.root, "show", ref+":"+path)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git show %s:%s failed in %s: %w", ref, path, r.root, err)
	}
	return output, nil
}

// parseNameStatusLine parses one line of `git diff --name-status`
// output: a status letter (with optional similarity score for renames),
// then tab-separated paths.
func parseNameStatusLine(line string) (ChangedFile, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 2 {
		return ChangedFile{}, false
	}
	status := parts[0]

	switch {
	case strings.HasPrefix(status, "A"):
		return ChangedFile{Path: parts[1], Kind: ChangeAdded}, true
	case strings.HasPrefix(status, "D"):
		return ChangedFile{Path: parts[1], Kind: ChangeDeleted}, true
	case strings.HasPrefix(status, "R"):
		if len(parts) < 3 {
			return ChangedFile{}, false
		}
		return ChangedFile{Path: parts[2], Kind: ChangeRenamed, OldPath: parts[1]}, true
	case strings.HasPrefix(status, "M"), strings.HasPrefix(status, "T"):
		return ChangedFile{Path: parts[1], Kind: ChangeModified}, true
	default:
		// Copies and unmerged entries are treated as modifications.
		return ChangedFile{Path: parts[1], Kind: ChangeModified}, true
	}
}
