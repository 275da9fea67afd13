package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/monorail-dev/monorail/internal/fsops"
	"github.com/monorail-dev/monorail/internal/manifest"
)

// Defaults for discovery behavior.
const (
	// DefaultDiscoveryTimeout bounds one discovery run; past it the
	// discoverer returns what it found so far.
	DefaultDiscoveryTimeout = 2 * time.Minute
	// DefaultCacheTTL is how long cached package entries stay fresh.
	DefaultCacheTTL = 5 * time.Minute
)

// excludedDirs are never descended into during enumeration.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
}

// Config controls a Discoverer.
type Config struct {
	// IOConcurrency bounds parallel manifest parsing (default: CPU count).
	IOConcurrency int
	// Timeout bounds one discovery run (default: 2 minutes).
	Timeout time.Duration
	// CacheTTL is the package cache freshness window (default: 5 minutes).
	CacheTTL time.Duration
}

// DefaultConfig returns default discovery configuration.
func DefaultConfig() Config {
	return Config{
		IOConcurrency: runtime.NumCPU(),
		Timeout:       DefaultDiscoveryTimeout,
		CacheTTL:      DefaultCacheTTL,
	}
}

// Discoverer detects the monorepo kind of a workspace root and
// enumerates its packages into a Graph.
type Discoverer struct {
	fs    fsops.FS
	cfg   Config
	cache *Cache
}

// NewDiscoverer creates a discoverer over the given filesystem.
func NewDiscoverer(filesystem fsops.FS, cfg Config) *Discoverer {
	if cfg.IOConcurrency <= 0 {
		cfg.IOConcurrency = runtime.NumCPU()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDiscoveryTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return &Discoverer{fs: filesystem, cfg: cfg, cache: NewCache(cfg.CacheTTL)}
}

// Cache exposes the discoverer's package cache.
func (d *Discoverer) Cache() *Cache {
	return d.cache
}

// Discover detects the workspace kind at root and builds the dependency
// graph. Unreadable package manifests are skipped with a warning; a
// malformed workspace declaration is fatal. When no probe file matches
// and only a single manifest exists, the result is a one-package graph
// of kind Custom.
func (d *Discoverer) Discover(ctx context.Context, root string) (*Graph, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	root = filepath.Clean(root)
	decl, err := d.detectKind(ctx, root)
	if err != nil {
		return nil, err
	}

	dirs, err := d.packageDirs(ctx, root, decl)
	if err != nil {
		return nil, err
	}

	packages, warnings, err := d.parseManifests(ctx, root, dirs)
	if err != nil {
		return nil, err
	}

	// No probe matched and at most one manifest: not a monorepo.
	if decl.Kind == KindCustom && len(packages) <= 1 && len(dirs) <= 1 {
		if len(packages) == 0 {
			if pkg := d.parseRootPackage(ctx, root); pkg != nil {
				packages = append(packages, pkg)
			}
		}
	}

	graph := NewGraph(decl.Kind, root, packages)
	graph.Warnings = append(warnings, graph.Warnings...)

	d.cache.Store(packages)
	return graph, nil
}

// packageDirs expands the declaration's patterns into candidate package
// directories: every directory under root that contains a package.json,
// is not excluded, and matches one of the patterns (or any directory
// with a manifest for a recursive declaration).
func (d *Discoverer) packageDirs(ctx context.Context, root string, decl declaration) ([]string, error) {
	var candidates []string
	err := d.fs.Walk(ctx, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable subtree: skip
		}
		if info.IsDir() {
			if path != root && excludedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Name() != "package.json" || filepath.Dir(path) == root {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return nil
		}
		candidates = append(candidates, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(candidates)

	if decl.Recursive && len(candidates) > 0 {
		if matched := matchAny(candidates, decl.Patterns); len(matched) >= 2 {
			return matched, nil
		}
		return candidates, nil
	}
	return matchAny(candidates, decl.Patterns), nil
}

// matchAny filters candidate directories against glob patterns.
// Explicit directories (no metacharacters) match exactly.
func matchAny(candidates, patterns []string) []string {
	var matched []string
	for _, dir := range candidates {
		for _, pattern := range patterns {
			ok, err := doublestar.Match(filepath.ToSlash(pattern), dir)
			if err != nil {
				continue
			}
			if ok {
				matched = append(matched, dir)
				break
			}
		}
	}
	return matched
}

// parseManifests parses the manifests of the given relative directories
// in parallel, bounded by IOConcurrency. Unparseable manifests become
// warnings; discovery order is the sorted directory order regardless of
// parse completion order.
func (d *Discoverer) parseManifests(ctx context.Context, root string, dirs []string) ([]*Package, []string, error) {
	results := make([]*Package, len(dirs))
	warningLists := make([][]string, len(dirs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.IOConcurrency)
	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			absDir := filepath.Join(root, filepath.FromSlash(dir))
			data, err := d.fs.ReadFile(ctx, filepath.Join(absDir, "package.json"))
			if err != nil {
				if ctx.Err() != nil {
					return nil // timeout: partial results
				}
				warningLists[i] = []string{fmt.Sprintf("skipping %s: %v", dir, err)}
				return nil
			}
			m, warns, err := manifest.Parse(data)
			if err != nil {
				warningLists[i] = []string{fmt.Sprintf("skipping %s: %v", dir, err)}
				return nil
			}
			warningLists[i] = warns
			results[i] = &Package{Manifest: m, AbsPath: absDir, RelPath: dir}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var packages []*Package
	var warnings []string
	seen := make(map[string]string)
	for i, pkg := range results {
		warnings = append(warnings, warningLists[i]...)
		if pkg == nil {
			continue
		}
		if prev, dup := seen[pkg.Name()]; dup {
			warnings = append(warnings, fmt.Sprintf(
				"skipping %s: duplicate package name %q (already at %s)", pkg.RelPath, pkg.Name(), prev))
			continue
		}
		seen[pkg.Name()] = pkg.RelPath
		packages = append(packages, pkg)
	}
	for _, w := range warnings {
		log.Printf("workspace: %s", w)
	}
	return packages, warnings, nil
}

// parseRootPackage parses the root manifest as a standalone package,
// for the single-package workspace case. Returns nil when the root has
// no usable manifest.
func (d *Discoverer) parseRootPackage(ctx context.Context, root string) *Package {
	data, ok, err := d.readIfExists(ctx, filepath.Join(root, "package.json"))
	if err != nil || !ok {
		return nil
	}
	m, _, err := manifest.Parse(data)
	if err != nil {
		return nil
	}
	return &Package{Manifest: m, AbsPath: root, RelPath: "."}
}

// FindOwner returns the workspace package whose directory is the
// innermost enclosing directory of the given workspace-relative path,
// or nil when no package contains it.
func FindOwner(g *Graph, relPath string) *Package {
	relPath = filepath.ToSlash(relPath)
	var owner *Package
	longest := -1
	for _, p := range g.Packages {
		prefix := p.RelPath
		if prefix == "." {
			if longest < 0 {
				owner, longest = p, 0
			}
			continue
		}
		if relPath == prefix || strings.HasPrefix(relPath, prefix+"/") {
			if len(prefix) > longest {
				owner, longest = p, len(prefix)
			}
		}
	}
	return owner
}
