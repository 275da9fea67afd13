package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/monorail-dev/monorail/internal/manifest"
)

// commonPatterns are the fallback package locations scanned when a
// workspace declaration does not name any.
var commonPatterns = []string{"packages/*", "apps/*", "libs/*", "tools/*"}

// declaration is the outcome of kind detection: which convention the
// workspace follows and where its packages live. Patterns may be globs
// or explicit directories; Recursive requests a full manifest scan.
type declaration struct {
	Kind      Kind
	Patterns  []string
	Recursive bool
}

// lernaConfig models lerna.json.
type lernaConfig struct {
	Packages      []string `json:"packages"`
	UseWorkspaces bool     `json:"useWorkspaces"`
	Version       string   `json:"version"`
}

// pnpmConfig models pnpm-workspace.yaml.
type pnpmConfig struct {
	Packages []string `yaml:"packages"`
}

// nxConfig models nx.json, workspace.json, and angular.json, which all
// share the projects shape.
type nxConfig struct {
	Projects map[string]struct {
		Root string `json:"root"`
	} `json:"projects"`
}

// rushConfig models rush.json.
type rushConfig struct {
	Projects []struct {
		PackageName   string `json:"packageName"`
		ProjectFolder string `json:"projectFolder"`
	} `json:"projects"`
}

// rootManifestProbe is a lenient view of the root package.json: roots
// frequently omit version, so the strict manifest parser does not apply.
type rootManifestProbe struct {
	Workspaces *manifest.Workspaces `json:"workspaces"`
}

// detectKind probes the workspace root for each monorepo convention in
// a fixed order; the first probe that matches wins.
func (d *Discoverer) detectKind(ctx context.Context, root string) (declaration, error) {
	probes := []func(context.Context, string) (declaration, bool, error){
		d.probeLerna,
		d.probeYarn,
		d.probePnpm,
		d.probeNx,
		d.probeTurborepo,
		d.probeRush,
	}
	for _, probe := range probes {
		decl, ok, err := probe(ctx, root)
		if err != nil {
			return declaration{}, err
		}
		if ok {
			return decl, nil
		}
	}
	return declaration{Kind: KindCustom, Patterns: commonPatterns, Recursive: true}, nil
}

func (d *Discoverer) probeLerna(ctx context.Context, root string) (declaration, bool, error) {
	data, ok, err := d.readIfExists(ctx, filepath.Join(root, "lerna.json"))
	if err != nil || !ok {
		return declaration{}, false, err
	}
	var cfg lernaConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return declaration{}, false, fmt.Errorf("%w: lerna.json: %v", ErrConfig, err)
	}
	if cfg.UseWorkspaces {
		patterns, err := d.yarnPatterns(ctx, root)
		if err != nil {
			return declaration{}, false, err
		}
		return declaration{Kind: KindLerna, Patterns: patterns}, true, nil
	}
	patterns := cfg.Packages
	if len(patterns) == 0 {
		patterns = []string{"packages/*"}
	}
	return declaration{Kind: KindLerna, Patterns: patterns}, true, nil
}

func (d *Discoverer) probeYarn(ctx context.Context, root string) (declaration, bool, error) {
	patterns, err := d.yarnPatterns(ctx, root)
	if err != nil {
		return declaration{}, false, err
	}
	if patterns == nil {
		return declaration{}, false, nil
	}
	return declaration{Kind: KindYarnWorkspaces, Patterns: patterns}, true, nil
}

// yarnPatterns returns the root package.json workspaces patterns, or
// nil when there is no workspaces declaration.
func (d *Discoverer) yarnPatterns(ctx context.Context, root string) ([]string, error) {
	data, ok, err := d.readIfExists(ctx, filepath.Join(root, "package.json"))
	if err != nil || !ok {
		return nil, err
	}
	var probe rootManifestProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: root package.json: %v", ErrConfig, err)
	}
	if probe.Workspaces == nil {
		return nil, nil
	}
	if len(probe.Workspaces.Patterns) == 0 {
		return []string{}, nil
	}
	return probe.Workspaces.Patterns, nil
}

func (d *Discoverer) probePnpm(ctx context.Context, root string) (declaration, bool, error) {
	data, ok, err := d.readIfExists(ctx, filepath.Join(root, "pnpm-workspace.yaml"))
	if err != nil || !ok {
		return declaration{}, false, err
	}
	var cfg pnpmConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return declaration{}, false, fmt.Errorf("%w: pnpm-workspace.yaml: %v", ErrConfig, err)
	}
	return declaration{Kind: KindPnpmWorkspaces, Patterns: cfg.Packages}, true, nil
}

func (d *Discoverer) probeNx(ctx context.Context, root string) (declaration, bool, error) {
	data, ok, err := d.readIfExists(ctx, filepath.Join(root, "nx.json"))
	if err != nil || !ok {
		return declaration{}, false, err
	}
	var cfg nxConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return declaration{}, false, fmt.Errorf("%w: nx.json: %v", ErrConfig, err)
	}
	if dirs := nxProjectDirs(cfg); len(dirs) > 0 {
		return declaration{Kind: KindNx, Patterns: dirs}, true, nil
	}

	// nx.json without a projects map: scan the companion files.
	for _, name := range []string{"workspace.json", "angular.json"} {
		data, ok, err := d.readIfExists(ctx, filepath.Join(root, name))
		if err != nil {
			return declaration{}, false, err
		}
		if !ok {
			continue
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return declaration{}, false, fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
		}
		if dirs := nxProjectDirs(cfg); len(dirs) > 0 {
			return declaration{Kind: KindNx, Patterns: dirs}, true, nil
		}
	}
	return declaration{Kind: KindNx, Patterns: commonPatterns}, true, nil
}

// nxProjectDirs extracts project directories from an nx projects map,
// sorted for determinism. A project without an explicit root lives in a
// directory named after it under the workspace root.
func nxProjectDirs(cfg nxConfig) []string {
	if len(cfg.Projects) == 0 {
		return nil
	}
	dirs := make([]string, 0, len(cfg.Projects))
	for name, project := range cfg.Projects {
		dir := project.Root
		if dir == "" {
			dir = name
		}
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

func (d *Discoverer) probeTurborepo(ctx context.Context, root string) (declaration, bool, error) {
	_, ok, err := d.readIfExists(ctx, filepath.Join(root, "turbo.json"))
	if err != nil || !ok {
		return declaration{}, false, err
	}

	// Packages come from the underlying workspace manager.
	if decl, ok, err := d.probePnpm(ctx, root); err != nil || ok {
		decl.Kind = KindTurborepo
		return decl, ok, err
	}
	patterns, err := d.yarnPatterns(ctx, root)
	if err != nil {
		return declaration{}, false, err
	}
	if patterns == nil {
		return declaration{}, false, fmt.Errorf(
			"%w: turbo.json present but no yarn or pnpm workspace declaration", ErrConfig)
	}
	return declaration{Kind: KindTurborepo, Patterns: patterns}, true, nil
}

func (d *Discoverer) probeRush(ctx context.Context, root string) (declaration, bool, error) {
	data, ok, err := d.readIfExists(ctx, filepath.Join(root, "rush.json"))
	if err != nil || !ok {
		return declaration{}, false, err
	}
	var cfg rushConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return declaration{}, false, fmt.Errorf("%w: rush.json: %v", ErrConfig, err)
	}
	dirs := make([]string, 0, len(cfg.Projects))
	for _, project := range cfg.Projects {
		if project.ProjectFolder != "" {
			dirs = append(dirs, project.ProjectFolder)
		}
	}
	return declaration{Kind: KindRush, Patterns: dirs}, true, nil
}

// readIfExists reads path when present; a missing file is not an error.
func (d *Discoverer) readIfExists(ctx context.Context, path string) ([]byte, bool, error) {
	ok, err := d.fs.Exists(ctx, path)
	if err != nil || !ok {
		return nil, false, err
	}
	data, err := d.fs.ReadFile(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
