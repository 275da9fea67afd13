package bump

import (
	"fmt"
	"sort"
	"strings"

	"github.com/monorail-dev/monorail/internal/fsops"
	"github.com/monorail-dev/monorail/internal/semver"
	"github.com/monorail-dev/monorail/internal/workspace"
)

// referenceSections are the manifest sections whose version specs are
// rewritten when a referenced package moves.
var referenceSections = []string{"dependencies", "devDependencies", "peerDependencies"}

// dependentWarnThreshold and affectedWarnThreshold bound the blast
// radius before the planner starts warning.
const (
	dependentWarnThreshold = 5
	affectedWarnThreshold  = 10
)

// Bumper computes and applies version-bump plans.
type Bumper struct {
	graph *workspace.Graph
	fs    fsops.FS
	cache *workspace.Cache
	cfg   Config
}

// New creates a bumper over a discovered graph. cache may be nil when
// no discovery cache needs invalidation after applies.
func New(graph *workspace.Graph, fs fsops.FS, cache *workspace.Cache, cfg Config) *Bumper {
	return &Bumper{graph: graph, fs: fs, cache: cache, cfg: cfg}
}

// Plan computes the bump report for a change set without side effects.
func (b *Bumper) Plan(cs ChangeSet) (*Report, error) {
	primaries, err := b.validate(cs)
	if err != nil {
		return nil, err
	}

	var cascade map[string]Strategy
	switch b.cfg.Mode {
	case ModeUnified:
		// Every non-independent package, primaries included, moves by
		// the highest-severity primary strategy.
		unified := unifiedStrategy(primaries)
		for name := range primaries {
			primaries[name] = unified
		}
		cascade = b.unifiedCascade(unified, primaries)
	case ModeMixed:
		cascade = b.mixedCascade(primaries)
	default:
		cascade = b.individualCascade(primaries)
	}
	// A package never appears in both sets; primary wins.
	for name := range primaries {
		delete(cascade, name)
	}

	report := &Report{
		PrimaryBumps: make(map[string]string, len(primaries)),
		CascadeBumps: make(map[string]string, len(cascade)),
	}
	for name, strat := range primaries {
		v, err := b.nextVersion(name, strat)
		if err != nil {
			return nil, err
		}
		report.PrimaryBumps[name] = v
	}
	for name, strat := range cascade {
		v, err := b.nextVersion(name, strat)
		if err != nil {
			return nil, err
		}
		report.CascadeBumps[name] = v
	}

	b.collectReferenceUpdates(report)
	b.collectAffected(report)
	b.collectWarnings(report, primaries)
	return report, nil
}

// validate checks every target is a workspace package with a well-formed
// strategy. A user-supplied Cascade strategy is accepted and treated as
// Patch.
func (b *Bumper) validate(cs ChangeSet) (map[string]Strategy, error) {
	primaries := make(map[string]Strategy, len(cs.Targets))
	for name, strat := range cs.Targets {
		if !b.graph.Has(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
		}
		if err := strat.Validate(); err != nil {
			return nil, fmt.Errorf("target %s: %w", name, err)
		}
		if strat.Kind == StrategyCascade {
			strat = Patch()
		}
		primaries[name] = strat
	}
	return primaries, nil
}

// individualCascade bumps only direct dependents of each primary, as
// patches. With sync_on_major_bump, a major primary propagates as major
// to non-independent dependents.
func (b *Bumper) individualCascade(primaries map[string]Strategy) map[string]Strategy {
	cascade := make(map[string]Strategy)
	for _, name := range sortedStrategyKeys(primaries) {
		strat := primaries[name]
		for dep := range b.graph.DependentsOf(name) {
			if _, isPrimary := primaries[dep]; isPrimary {
				continue
			}
			if b.cfg.independent(dep) {
				continue
			}
			c := Patch()
			if b.cfg.SyncOnMajorBump && strat.Kind == StrategyMajor {
				c = Major()
			}
			cascade[dep] = maxStrategy(cascade[dep], c)
		}
	}
	return cascade
}

// unifiedStrategy is the highest-severity strategy among the primaries.
func unifiedStrategy(primaries map[string]Strategy) Strategy {
	var unified Strategy
	for _, strat := range primaries {
		unified = maxStrategy(unified, strat)
	}
	return unified
}

// unifiedCascade moves every non-independent, non-primary package by the
// unified strategy.
func (b *Bumper) unifiedCascade(unified Strategy, primaries map[string]Strategy) map[string]Strategy {
	cascade := make(map[string]Strategy)
	if unified.Kind == "" {
		return cascade
	}
	for _, p := range b.graph.Packages {
		name := p.Name()
		if _, isPrimary := primaries[name]; isPrimary {
			continue
		}
		if b.cfg.independent(name) {
			continue
		}
		cascade[name] = unified
	}
	return cascade
}

// mixedCascade applies unified semantics inside each named group that
// contains a primary, and individual semantics between the ungrouped
// packages.
func (b *Bumper) mixedCascade(primaries map[string]Strategy) map[string]Strategy {
	cascade := make(map[string]Strategy)

	// Highest-severity primary strategy per group. Unified semantics
	// inside a group raise grouped primaries to their group's strategy.
	groupStrategy := make(map[int]Strategy)
	for name, strat := range primaries {
		if g := b.cfg.groupOf(name); g >= 0 {
			groupStrategy[g] = maxStrategy(groupStrategy[g], strat)
		}
	}
	for name := range primaries {
		if g := b.cfg.groupOf(name); g >= 0 {
			primaries[name] = groupStrategy[g]
		}
	}
	for _, p := range b.graph.Packages {
		name := p.Name()
		if _, isPrimary := primaries[name]; isPrimary {
			continue
		}
		if b.cfg.independent(name) {
			continue
		}
		g := b.cfg.groupOf(name)
		if g < 0 {
			continue
		}
		if strat, ok := groupStrategy[g]; ok {
			cascade[name] = maxStrategy(cascade[name], strat)
		}
	}

	// Ungrouped primaries cascade individually to ungrouped dependents.
	for _, name := range sortedStrategyKeys(primaries) {
		if b.cfg.groupOf(name) >= 0 {
			continue
		}
		strat := primaries[name]
		for dep := range b.graph.DependentsOf(name) {
			if _, isPrimary := primaries[dep]; isPrimary {
				continue
			}
			if b.cfg.independent(dep) || b.cfg.groupOf(dep) >= 0 {
				continue
			}
			c := Patch()
			if b.cfg.SyncOnMajorBump && strat.Kind == StrategyMajor {
				c = Major()
			}
			cascade[dep] = maxStrategy(cascade[dep], c)
		}
	}
	return cascade
}

// nextVersion applies strat to the package's current version.
func (b *Bumper) nextVersion(name string, strat Strategy) (string, error) {
	current := b.graph.Get(name).Version()
	v, err := semver.Parse(current)
	if err != nil {
		return "", fmt.Errorf("package %s: %w", name, err)
	}
	switch strat.Kind {
	case StrategyMajor:
		return v.BumpMajor().String(), nil
	case StrategyMinor:
		return v.BumpMinor().String(), nil
	case StrategySnapshot:
		return v.BumpSnapshot(strat.SnapshotID, []string{current}).String(), nil
	default:
		// Patch and cascade move the same way.
		return v.BumpPatch().String(), nil
	}
}

// collectReferenceUpdates emits a rewrite for every manifest entry that
// references a bumped package, preserving range operators and the
// workspace protocol. Entries already at the new spec emit nothing.
func (b *Bumper) collectReferenceUpdates(report *Report) {
	for _, p := range b.graph.Packages {
		for _, section := range referenceSections {
			deps := p.Manifest.DependencyMap(section)
			for _, dep := range sortedRefKeys(deps) {
				newVersion, ok := report.NewVersion(dep)
				if !ok {
					continue
				}
				from := deps[dep]
				to, kind := rewriteRef(from, newVersion)
				if from == to {
					continue
				}
				report.ReferenceUpdates = append(report.ReferenceUpdates, ReferenceUpdate{
					Package:    p.Name(),
					Dependency: dep,
					FromRef:    from,
					ToRef:      to,
					Kind:       kind,
				})
			}
		}
	}
}

// rewriteRef computes the new version spec for a reference to a package
// moving to newVersion.
func rewriteRef(from, newVersion string) (string, UpdateKind) {
	switch {
	case strings.HasPrefix(from, "workspace:"):
		return "workspace:" + newVersion, UpdateWorkspaceProtocol
	case strings.HasPrefix(from, "^"), strings.HasPrefix(from, "~"):
		return from[:1] + newVersion, UpdateKeepRange
	default:
		return newVersion, UpdateFixedVersion
	}
}

// collectAffected lists packages that depend on a bumped package but are
// not bumped themselves.
func (b *Bumper) collectAffected(report *Report) {
	for _, p := range b.graph.Packages {
		name := p.Name()
		if report.Bumped(name) {
			continue
		}
		for dep := range p.WorkspaceDeps {
			if report.Bumped(dep) {
				report.AffectedPackages = append(report.AffectedPackages, name)
				break
			}
		}
	}
	sort.Strings(report.AffectedPackages)
}

// collectWarnings flags wide blast radii.
func (b *Bumper) collectWarnings(report *Report, primaries map[string]Strategy) {
	if b.cfg.Mode == ModeUnified {
		for _, strat := range primaries {
			if strat.Kind == StrategyMajor {
				report.Warnings = append(report.Warnings,
					"unified strategy with a major bump: all packages will be major-bumped")
				break
			}
		}
	}

	total := len(report.PrimaryBumps) + len(report.CascadeBumps) + len(report.AffectedPackages)
	if total > affectedWarnThreshold {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("bump touches %d packages", total))
	}

	for _, name := range sortedStrategyKeys(primaries) {
		if n := len(b.graph.DependentsOf(name)); n > dependentWarnThreshold {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("package %s has %d direct dependents", name, n))
		}
	}
}

func sortedStrategyKeys(m map[string]Strategy) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRefKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
