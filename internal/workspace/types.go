// Package workspace discovers the packages of a monorepo and maintains
// the inter-package dependency graph.
package workspace

import (
	"errors"
	"path/filepath"

	"github.com/monorail-dev/monorail/internal/manifest"
)

// Kind identifies the monorepo convention a workspace follows.
type Kind string

const (
	// KindLerna is a lerna.json workspace.
	KindLerna Kind = "lerna"
	// KindYarnWorkspaces is a package.json workspaces declaration.
	KindYarnWorkspaces Kind = "yarn-workspaces"
	// KindPnpmWorkspaces is a pnpm-workspace.yaml declaration.
	KindPnpmWorkspaces Kind = "pnpm-workspaces"
	// KindNx is an nx.json workspace.
	KindNx Kind = "nx"
	// KindTurborepo is a turbo.json workspace over yarn or pnpm.
	KindTurborepo Kind = "turborepo"
	// KindRush is a rush.json workspace.
	KindRush Kind = "rush"
	// KindCustom is a workspace with no recognizable probe file.
	KindCustom Kind = "custom"
)

// Sentinel errors for workspace handling.
var (
	// ErrConfig indicates a malformed or conflicting workspace
	// declaration. Fatal to discovery.
	ErrConfig = errors.New("workspace configuration error")
	// ErrCycle indicates a dependency cycle blocked a topological query.
	ErrCycle = errors.New("dependency cycle")
	// ErrUnknownPackage indicates a name not present in the graph.
	ErrUnknownPackage = errors.New("unknown package")
)

// Package is one discovered package in a workspace.
type Package struct {
	// Manifest is the parsed package.json.
	Manifest *manifest.Manifest
	// AbsPath is the directory containing the manifest.
	AbsPath string
	// RelPath is AbsPath relative to the workspace root.
	RelPath string
	// WorkspaceDeps holds the names of sibling packages this package
	// depends on (dependencies, devDependencies, or peerDependencies).
	WorkspaceDeps map[string]struct{}
	// Dependents is the reverse of WorkspaceDeps, materialized by the
	// graph builder.
	Dependents map[string]struct{}
}

// Name returns the package name from its manifest.
func (p *Package) Name() string {
	return p.Manifest.Name
}

// Version returns the package version from its manifest.
func (p *Package) Version() string {
	return p.Manifest.Version
}

// ManifestPath returns the absolute path of the package's package.json.
func (p *Package) ManifestPath() string {
	return filepath.Join(p.AbsPath, "package.json")
}

// DependsOn reports whether this package has a workspace dependency on
// name.
func (p *Package) DependsOn(name string) bool {
	_, ok := p.WorkspaceDeps[name]
	return ok
}
