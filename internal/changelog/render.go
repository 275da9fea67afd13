package changelog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format selects the output rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

// GroupBy selects how commits are grouped in rendered output.
type GroupBy string

const (
	// GroupByType groups by conventional type, the default.
	GroupByType GroupBy = "type"
	// GroupByScope groups by scope.
	GroupByScope GroupBy = "scope"
	// GroupNone renders one flat list.
	GroupNone GroupBy = "none"
)

// otherGroup collects commits of unknown type when grouping by type,
// and unscoped commits when grouping by scope.
const otherGroup = "Other Changes"

// typeSections maps conventional types to section titles, in render
// order.
var typeSections = []struct {
	Type  string
	Title string
}{
	{"feat", "Features"},
	{"fix", "Bug Fixes"},
	{"perf", "Performance"},
	{"refactor", "Refactoring"},
	{"docs", "Documentation"},
	{"test", "Tests"},
	{"build", "Build"},
	{"ci", "CI"},
	{"chore", "Chores"},
	{"revert", "Reverts"},
}

// Options configures one changelog rendering.
type Options struct {
	// Package is the package the changelog covers.
	Package string
	// Version is the released version.
	Version string
	// PreviousVersion, when known, feeds JSON metadata and compare URLs.
	PreviousVersion string
	// Date is the release date, already formatted (YYYY-MM-DD).
	Date string
	// CompareURL links the release diff, when available.
	CompareURL string
	// Format is the output format; default Markdown.
	Format Format
	// GroupBy is the grouping mode; default by type.
	GroupBy GroupBy
	// BreakingSection surfaces breaking changes in a top section.
	// Defaults to on for Markdown.
	BreakingSection bool
}

// footer closes every Markdown rendering.
const footer = "Generated by monorail"

// group is one rendered section.
type group struct {
	title   string
	commits []Commit
}

// groupCommits partitions commits per the grouping mode, preserving
// commit order within each group.
func groupCommits(commits []Commit, mode GroupBy) []group {
	if mode == GroupNone {
		return []group{{title: "", commits: commits}}
	}

	byKey := make(map[string][]Commit)
	var keyOrder []string
	add := func(key string, c Commit) {
		if _, ok := byKey[key]; !ok {
			keyOrder = append(keyOrder, key)
		}
		byKey[key] = append(byKey[key], c)
	}

	if mode == GroupByScope {
		for _, c := range commits {
			key := c.Scope
			if key == "" {
				key = otherGroup
			}
			add(key, c)
		}
		var groups []group
		for _, key := range keyOrder {
			groups = append(groups, group{title: key, commits: byKey[key]})
		}
		return groups
	}

	// By type: known types in section order, the rest under Other
	// Changes.
	for _, c := range commits {
		add(c.Type, c)
	}
	known := make(map[string]bool)
	var groups []group
	for _, section := range typeSections {
		known[section.Type] = true
		if cs, ok := byKey[section.Type]; ok {
			groups = append(groups, group{title: section.Title, commits: cs})
		}
	}
	var other []Commit
	for _, key := range keyOrder {
		if !known[key] {
			other = append(other, byKey[key]...)
		}
	}
	if len(other) > 0 {
		groups = append(groups, group{title: otherGroup, commits: other})
	}
	return groups
}

// Render produces the changelog section for one release.
func Render(commits []Commit, opts Options) (string, error) {
	if opts.Format == "" {
		opts.Format = FormatMarkdown
	}
	if opts.GroupBy == "" {
		opts.GroupBy = GroupByType
	}
	switch opts.Format {
	case FormatMarkdown:
		return renderMarkdown(commits, opts), nil
	case FormatText:
		return renderText(commits, opts), nil
	case FormatJSON:
		return renderJSON(commits, opts)
	}
	return "", fmt.Errorf("unknown changelog format %q", opts.Format)
}

// preamble opens every standalone Markdown changelog.
const preamble = "# Changelog\n\n"

func renderMarkdown(commits []Commit, opts Options) string {
	return preamble + renderMarkdownSection(commits, opts) + footer + "\n"
}

// renderMarkdownSection renders one release section without the
// document preamble and footer, for merging into an existing changelog.
func renderMarkdownSection(commits []Commit, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## [%s] - %s\n\n", opts.Version, opts.Date)
	if opts.CompareURL != "" {
		fmt.Fprintf(&b, "[Full diff](%s)\n\n", opts.CompareURL)
	}

	if opts.BreakingSection {
		var breaking []Commit
		for _, c := range commits {
			if c.Breaking {
				breaking = append(breaking, c)
			}
		}
		if len(breaking) > 0 {
			b.WriteString("### BREAKING CHANGES\n\n")
			for _, c := range breaking {
				writeBullet(&b, c)
			}
			b.WriteString("\n")
		}
	}

	for _, g := range groupCommits(commits, opts.GroupBy) {
		if g.title != "" {
			fmt.Fprintf(&b, "### %s\n\n", g.title)
		}
		for _, c := range g.commits {
			writeBullet(&b, c)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeBullet(b *strings.Builder, c Commit) {
	b.WriteString("- ")
	if c.Scope != "" {
		fmt.Fprintf(b, "**%s:** ", c.Scope)
	}
	b.WriteString(c.Description)
	if c.Hash != "" {
		fmt.Fprintf(b, " (%s)", c.ShortHash())
	}
	b.WriteString("\n")
}

func renderText(commits []Commit, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n\n", opts.Version, opts.Date)
	for _, c := range commits {
		if c.Breaking {
			b.WriteString("[BREAKING] ")
		}
		if c.Scope != "" {
			fmt.Fprintf(&b, "%s: ", c.Scope)
		}
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	return b.String()
}

// jsonChangelog is the JSON rendering shape.
type jsonChangelog struct {
	Metadata struct {
		Package         string `json:"package"`
		Version         string `json:"version"`
		Date            string `json:"date"`
		PreviousVersion string `json:"previous_version,omitempty"`
		CompareURL      string `json:"compare_url,omitempty"`
	} `json:"metadata"`
	Commits struct {
		Total           int            `json:"total"`
		BreakingChanges int            `json:"breaking_changes"`
		ByType          map[string]int `json:"by_type"`
	} `json:"commits"`
}

func renderJSON(commits []Commit, opts Options) (string, error) {
	var doc jsonChangelog
	doc.Metadata.Package = opts.Package
	doc.Metadata.Version = opts.Version
	doc.Metadata.Date = opts.Date
	doc.Metadata.PreviousVersion = opts.PreviousVersion
	doc.Metadata.CompareURL = opts.CompareURL

	doc.Commits.Total = len(commits)
	doc.Commits.ByType = make(map[string]int)
	for _, c := range commits {
		if c.Breaking {
			doc.Commits.BreakingChanges++
		}
		doc.Commits.ByType[c.Type]++
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode changelog: %w", err)
	}
	return string(out) + "\n", nil
}
