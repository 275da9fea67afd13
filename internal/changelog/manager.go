package changelog

import (
	"context"
	"fmt"
	"strings"

	"github.com/monorail-dev/monorail/internal/fsops"
)

// Manager maintains a changelog file across releases: new sections are
// prepended under the existing preamble.
type Manager struct {
	fs fsops.FS
}

// NewManager creates a manager over the given filesystem.
func NewManager(fs fsops.FS) *Manager {
	return &Manager{fs: fs}
}

// Update renders the release section for commits and merges it into the
// changelog at path. A missing file is created with the standard
// preamble; an existing file keeps everything above its first release
// section.
func (m *Manager) Update(ctx context.Context, path string, commits []Commit, opts Options) error {
	section := renderMarkdownSection(commits, opts)

	exists, err := m.fs.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("changelog %s: %w", path, err)
	}

	var out string
	if !exists {
		out = preamble + section + footer + "\n"
	} else {
		existing, err := m.fs.ReadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("changelog %s: %w", path, err)
		}
		out = merge(string(existing), section)
	}

	if err := m.fs.WriteFile(ctx, path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("changelog %s: %w", path, err)
	}
	return nil
}

// merge prepends section to existing content, keeping the preamble
// (everything before the first "## " heading) in place. Content with no
// release heading is treated as all preamble.
func merge(existing, section string) string {
	idx := sectionStart(existing)
	if idx < 0 {
		head := strings.TrimRight(existing, "\n")
		if head == "" {
			return preamble + section
		}
		return head + "\n\n" + section
	}
	return existing[:idx] + section + existing[idx:]
}

// sectionStart returns the byte offset of the first release heading, or
// -1 when there is none.
func sectionStart(content string) int {
	if strings.HasPrefix(content, "## ") {
		return 0
	}
	if idx := strings.Index(content, "\n## "); idx >= 0 {
		return idx + 1
	}
	return -1
}
