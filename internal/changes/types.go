// Package changes joins git revision history with the workspace graph:
// which packages are dirty, which dependents are affected, and how
// significant the changes look.
package changes

import "github.com/monorail-dev/monorail/internal/gitx"

// HintKind classifies a dependency-map difference between two manifest
// revisions.
type HintKind string

const (
	// HintAdded indicates a new dependency entry.
	HintAdded HintKind = "added"
	// HintRemoved indicates a deleted dependency entry.
	HintRemoved HintKind = "removed"
	// HintUpgraded indicates the version spec moved forward.
	HintUpgraded HintKind = "upgraded"
	// HintDowngraded indicates the version spec moved backward.
	HintDowngraded HintKind = "downgraded"
)

// DependencyHint describes one changed dependency entry.
type DependencyHint struct {
	Kind    HintKind `json:"kind"`
	Section string   `json:"section"`
	Name    string   `json:"name"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
}

// Significance is a suggested version bump derived from commits and
// file kinds.
type Significance string

const (
	SignificanceNone  Significance = "none"
	SignificancePatch Significance = "patch"
	SignificanceMinor Significance = "minor"
	SignificanceMajor Significance = "major"
)

// PackageChange is the set of changed files attributed to one package.
type PackageChange struct {
	// Package is the workspace package name.
	Package string `json:"package"`
	// ChangedPaths are the workspace-relative paths that changed.
	ChangedPaths []string `json:"changed_paths"`
	// Hints describe dependency-map changes found in the package's
	// manifest, when it changed.
	Hints []DependencyHint `json:"hints,omitempty"`
	// SuggestedBump is the significance inferred for this package.
	SuggestedBump Significance `json:"suggested_bump,omitempty"`
}

// Affected partitions the impact of a change.
type Affected struct {
	// DirectlyAffected are packages with changed files of their own.
	DirectlyAffected map[string]struct{} `json:"directly_affected"`
	// DependentsAffected are packages reachable from a directly
	// affected package over reverse dependency edges; always disjoint
	// from DirectlyAffected.
	DependentsAffected map[string]struct{} `json:"dependents_affected"`
	// TotalAffectedCount is the size of the union.
	TotalAffectedCount int `json:"total_affected_count"`
}

// Contains reports whether name is affected directly or as a dependent.
func (a Affected) Contains(name string) bool {
	if _, ok := a.DirectlyAffected[name]; ok {
		return true
	}
	_, ok := a.DependentsAffected[name]
	return ok
}

// Analysis is the full result of change detection over a revision range.
type Analysis struct {
	// ChangedFiles is the raw file list from the repository, in
	// repository order.
	ChangedFiles []gitx.ChangedFile `json:"changed_files"`
	// PackageChanges groups changed files by owning package.
	PackageChanges []PackageChange `json:"package_changes"`
	// RootHints are dependency changes found in the workspace root
	// manifest, which affect every package.
	RootHints []DependencyHint `json:"root_hints,omitempty"`
	// Affected is the computed impact.
	Affected Affected `json:"affected_packages"`
}
