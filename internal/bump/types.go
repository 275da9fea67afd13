// Package bump computes and applies cascade version-bump plans over a
// workspace graph. A plan assigns new versions to primary targets and
// their cascaded dependents under one of three strategies, then rewrites
// every manifest reference to a bumped package.
package bump

import (
	"errors"
	"fmt"
)

// Sentinel errors for bump handling.
var (
	// ErrUnknownTarget indicates a change set names a package that is
	// not in the workspace.
	ErrUnknownTarget = errors.New("unknown bump target")
	// ErrInvalidStrategy indicates a malformed strategy, such as a
	// snapshot without an identifier.
	ErrInvalidStrategy = errors.New("invalid bump strategy")
)

// StrategyKind identifies how a version moves.
type StrategyKind string

const (
	// StrategyMajor bumps (M+1).0.0.
	StrategyMajor StrategyKind = "major"
	// StrategyMinor bumps M.(m+1).0.
	StrategyMinor StrategyKind = "minor"
	// StrategyPatch bumps M.m.(p+1).
	StrategyPatch StrategyKind = "patch"
	// StrategySnapshot appends a counted pre-release suffix to the
	// current base version.
	StrategySnapshot StrategyKind = "snapshot"
	// StrategyCascade marks a bump forced by a dependency; it moves the
	// version like a patch.
	StrategyCascade StrategyKind = "cascade"
)

// Strategy is a bump strategy, with the snapshot identifier when the
// kind is StrategySnapshot.
type Strategy struct {
	Kind StrategyKind `json:"kind"`
	// SnapshotID is the pre-release identifier for snapshot bumps.
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// Major returns the major-bump strategy.
func Major() Strategy { return Strategy{Kind: StrategyMajor} }

// Minor returns the minor-bump strategy.
func Minor() Strategy { return Strategy{Kind: StrategyMinor} }

// Patch returns the patch-bump strategy.
func Patch() Strategy { return Strategy{Kind: StrategyPatch} }

// Snapshot returns a snapshot strategy with the given identifier.
func Snapshot(id string) Strategy {
	return Strategy{Kind: StrategySnapshot, SnapshotID: id}
}

// Cascade returns the cascade strategy.
func Cascade() Strategy { return Strategy{Kind: StrategyCascade} }

// Validate checks the strategy is well formed.
func (s Strategy) Validate() error {
	switch s.Kind {
	case StrategyMajor, StrategyMinor, StrategyPatch, StrategyCascade:
		return nil
	case StrategySnapshot:
		if s.SnapshotID == "" {
			return fmt.Errorf("%w: snapshot without identifier", ErrInvalidStrategy)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStrategy, s.Kind)
}

// String renders the strategy for logs and warnings.
func (s Strategy) String() string {
	if s.Kind == StrategySnapshot {
		return fmt.Sprintf("snapshot(%s)", s.SnapshotID)
	}
	return string(s.Kind)
}

// severity orders strategies for unified and mixed cascades.
// Major > Minor > Patch > Snapshot > Cascade.
func (s Strategy) severity() int {
	switch s.Kind {
	case StrategyMajor:
		return 4
	case StrategyMinor:
		return 3
	case StrategyPatch:
		return 2
	case StrategySnapshot:
		return 1
	case StrategyCascade:
		return 0
	}
	return -1
}

// maxStrategy returns the higher-severity of two strategies. The zero
// Strategy loses to any valid one.
func maxStrategy(a, b Strategy) Strategy {
	if a.Kind == "" {
		return b
	}
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Mode selects between a pure computation and filesystem writes.
type Mode string

const (
	// ModePreview computes the report without touching any file.
	ModePreview Mode = "preview"
	// ModeApply computes the report and writes the manifests.
	ModeApply Mode = "apply"
)

// ChangeSet is the bumper's input: which packages move and how.
type ChangeSet struct {
	// Targets maps primary package names to their bump strategies.
	Targets map[string]Strategy `json:"targets"`
	// Description is a free-form label carried into logs.
	Description string `json:"description,omitempty"`
	// Mode is preview or apply.
	Mode Mode `json:"mode"`
}

// UpdateKind classifies how a dependency reference is rewritten.
type UpdateKind string

const (
	// UpdateWorkspaceProtocol rewrites a workspace: reference.
	UpdateWorkspaceProtocol UpdateKind = "workspace-protocol"
	// UpdateKeepRange preserves a ^ or ~ range operator.
	UpdateKeepRange UpdateKind = "keep-range"
	// UpdateFixedVersion pins the exact new version.
	UpdateFixedVersion UpdateKind = "fixed-version"
)

// ReferenceUpdate is one dependency-spec rewrite in one manifest.
type ReferenceUpdate struct {
	// Package is the manifest being edited.
	Package string `json:"package"`
	// Dependency is the bumped package being referenced.
	Dependency string `json:"dependency"`
	// FromRef and ToRef are the old and new version specs.
	FromRef string `json:"from_ref"`
	ToRef   string `json:"to_ref"`
	// Kind is the rewrite classification.
	Kind UpdateKind `json:"update_kind"`
}

// Report is the outcome of a bump computation, and of its application
// when the mode was apply.
type Report struct {
	// PrimaryBumps maps each target package to its new version.
	PrimaryBumps map[string]string `json:"primary_bumps"`
	// CascadeBumps maps each cascaded package to its new version.
	CascadeBumps map[string]string `json:"cascade_bumps"`
	// ReferenceUpdates lists every dependency-spec rewrite.
	ReferenceUpdates []ReferenceUpdate `json:"reference_updates"`
	// AffectedPackages are packages that reference a bumped package but
	// are not bumped themselves, sorted.
	AffectedPackages []string `json:"affected_packages"`
	// Warnings flag wide blast radii.
	Warnings []string `json:"warnings,omitempty"`
	// Errors aggregates write failures from a best-effort apply.
	Errors []string `json:"errors,omitempty"`
}

// Bumped reports whether name receives a new version in this report.
func (r *Report) Bumped(name string) bool {
	if _, ok := r.PrimaryBumps[name]; ok {
		return true
	}
	_, ok := r.CascadeBumps[name]
	return ok
}

// NewVersion returns the version name moves to, primary or cascade.
func (r *Report) NewVersion(name string) (string, bool) {
	if v, ok := r.PrimaryBumps[name]; ok {
		return v, true
	}
	v, ok := r.CascadeBumps[name]
	return v, ok
}
