// Package changelog parses conventional commits and renders release
// notes in Markdown, plain text, or JSON.
package changelog

import (
	"regexp"
	"strings"

	"github.com/monorail-dev/monorail/internal/gitx"
)

// headerPattern is the conventional-commit header grammar:
// type(scope)!: description, scope and ! optional.
var headerPattern = regexp.MustCompile(`^(\w+)(?:\(([^)]*)\))?(!)?:\s*(.+)$`)

// breakingToken marks a breaking change in the commit body.
const breakingToken = "BREAKING CHANGE"

// fallbackType absorbs non-conforming messages.
const fallbackType = "chore"

// Commit is one parsed conventional commit.
type Commit struct {
	// Hash is the git commit hash.
	Hash string `json:"hash"`
	// Type is the conventional type, "chore" for non-conforming
	// messages.
	Type string `json:"type"`
	// Scope is the optional scope, empty when absent.
	Scope string `json:"scope,omitempty"`
	// Description is the header description, or the whole message for
	// non-conforming commits.
	Description string `json:"description"`
	// Breaking is set by a ! marker or a BREAKING CHANGE body token.
	Breaking bool `json:"breaking"`
}

// ParseMessage parses a commit message into its conventional parts.
// Messages that do not match the grammar come back as chore with the
// whole first line as description.
func ParseMessage(message string) Commit {
	header := message
	body := ""
	if idx := strings.Index(message, "\n"); idx >= 0 {
		header = message[:idx]
		body = message[idx+1:]
	}
	header = strings.TrimSpace(header)

	c := Commit{Type: fallbackType, Description: header}
	if m := headerPattern.FindStringSubmatch(header); m != nil {
		c.Type = strings.ToLower(m[1])
		c.Scope = m[2]
		c.Breaking = m[3] == "!"
		c.Description = m[4]
	}
	if strings.Contains(body, breakingToken) {
		c.Breaking = true
	}
	return c
}

// Parse parses a git commit, carrying its hash.
func Parse(commit gitx.Commit) Commit {
	c := ParseMessage(commit.Message)
	c.Hash = commit.Hash
	return c
}

// ParseAll parses a commit list, newest first order preserved.
func ParseAll(commits []gitx.Commit) []Commit {
	parsed := make([]Commit, len(commits))
	for i, c := range commits {
		parsed[i] = Parse(c)
	}
	return parsed
}

// ShortHash returns the abbreviated hash used in rendered output.
func (c Commit) ShortHash() string {
	if len(c.Hash) > 7 {
		return c.Hash[:7]
	}
	return c.Hash
}
