package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/monorail-dev/monorail/internal/gitx"
	"github.com/monorail-dev/monorail/internal/manifest"
	"github.com/monorail-dev/monorail/internal/workspace"
)

// Analyzer computes change analyses over a workspace graph.
type Analyzer struct {
	repo  gitx.Repository
	graph *workspace.Graph
}

// NewAnalyzer creates an analyzer over the given repository and graph.
func NewAnalyzer(repo gitx.Repository, graph *workspace.Graph) *Analyzer {
	return &Analyzer{repo: repo, graph: graph}
}

// DetectChangesSince analyzes every change between baseRev and HEAD:
// which files changed, which packages own them, and which dependents
// are transitively affected.
func (a *Analyzer) DetectChangesSince(ctx context.Context, baseRev string) (*Analysis, error) {
	files, err := a.repo.ChangedFilesSince(ctx, baseRev)
	if err != nil {
		return nil, fmt.Errorf("list changed files since %s: %w", baseRev, err)
	}

	analysis := &Analysis{ChangedFiles: files}
	byPackage := make(map[string][]string)
	var packageOrder []string
	rootManifestChanged := false

	for _, file := range files {
		if file.Path == "package.json" {
			rootManifestChanged = true
			continue
		}
		owner := workspace.FindOwner(a.graph, file.Path)
		if owner == nil {
			continue
		}
		name := owner.Name()
		if _, seen := byPackage[name]; !seen {
			packageOrder = append(packageOrder, name)
		}
		byPackage[name] = append(byPackage[name], file.Path)
	}

	directly := make(map[string]struct{})
	for _, name := range packageOrder {
		directly[name] = struct{}{}
	}

	// A dependency-section change in the root manifest affects every
	// package: shared dependencies shifted under all of them.
	if rootManifestChanged {
		hints := a.rootDependencyHints(ctx, baseRev)
		if len(hints) > 0 {
			analysis.RootHints = hints
			for _, p := range a.graph.Packages {
				name := p.Name()
				if _, seen := byPackage[name]; !seen {
					packageOrder = append(packageOrder, name)
				}
				byPackage[name] = append(byPackage[name], "package.json")
				directly[name] = struct{}{}
			}
		}
	}

	for _, name := range packageOrder {
		change := PackageChange{Package: name, ChangedPaths: byPackage[name]}
		change.Hints = a.manifestHints(ctx, baseRev, name, byPackage[name])
		change.SuggestedBump = a.suggestBump(ctx, baseRev, name, byPackage[name])
		analysis.PackageChanges = append(analysis.PackageChanges, change)
	}

	dependents := a.dependentsOf(directly)
	analysis.Affected = Affected{
		DirectlyAffected:   directly,
		DependentsAffected: dependents,
		TotalAffectedCount: len(directly) + len(dependents),
	}
	return analysis, nil
}

// dependentsOf walks reverse edges from every directly affected package
// and returns the reachable set minus the direct set.
func (a *Analyzer) dependentsOf(directly map[string]struct{}) map[string]struct{} {
	dependents := make(map[string]struct{})
	for name := range directly {
		for dep := range a.graph.TransitiveDependentsOf(name) {
			if _, isDirect := directly[dep]; !isDirect {
				dependents[dep] = struct{}{}
			}
		}
	}
	return dependents
}

// rootDependencyHints diffs the root manifest's dependency sections
// between baseRev and HEAD. A root manifest that only changed
// non-dependency fields yields no hints.
func (a *Analyzer) rootDependencyHints(ctx context.Context, baseRev string) []DependencyHint {
	base, head := a.manifestPair(ctx, baseRev, "package.json")
	if base == nil || head == nil {
		// Unreadable or unparseable root manifests are not fatal to the
		// analysis; they just yield no hints.
		return nil
	}
	return DiffDependencies(base, head)
}

// manifestHints diffs a package's own manifest when it is among the
// changed paths.
func (a *Analyzer) manifestHints(ctx context.Context, baseRev, name string, changed []string) []DependencyHint {
	p := a.graph.Get(name)
	if p == nil {
		return nil
	}
	manifestPath := path.Join(filepathToSlash(p.RelPath), "package.json")
	found := false
	for _, c := range changed {
		if c == manifestPath {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	base, head := a.manifestPair(ctx, baseRev, manifestPath)
	if base == nil || head == nil {
		return nil
	}
	return DiffDependencies(base, head)
}

// manifestPair loads and parses a manifest at baseRev and HEAD. Either
// side can be nil when the file is missing or unparseable at that
// revision.
func (a *Analyzer) manifestPair(ctx context.Context, baseRev, manifestPath string) (*manifest.Manifest, *manifest.Manifest) {
	baseData, err := a.repo.FileAt(ctx, baseRev, manifestPath)
	if err != nil {
		return nil, nil
	}
	headData, err := a.repo.FileAt(ctx, "HEAD", manifestPath)
	if err != nil {
		return nil, nil
	}
	base, err := parseLenient(baseData)
	if err != nil {
		return nil, nil
	}
	head, err := parseLenient(headData)
	if err != nil {
		return nil, nil
	}
	return base, head
}

// parseLenient parses a manifest but tolerates roots without a name or
// version, which the strict parser rejects.
func parseLenient(data []byte) (*manifest.Manifest, error) {
	m, _, err := manifest.Parse(data)
	if err == nil {
		return m, nil
	}
	var loose manifest.Manifest
	if jerr := json.Unmarshal(data, &loose); jerr != nil {
		return nil, err
	}
	return &loose, nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
