package bump

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/monorail-dev/monorail/internal/manifest"
)

// Execute runs the change set: Plan always, writes only in apply mode.
// Preview and apply share the computation and differ only at the
// side-effect step.
func (b *Bumper) Execute(ctx context.Context, cs ChangeSet) (*Report, error) {
	report, err := b.Plan(cs)
	if err != nil {
		return nil, err
	}
	if cs.Mode != ModeApply {
		return report, nil
	}

	b.applyPlan(ctx, report)
	if b.cache != nil {
		b.cache.Invalidate()
	}
	return report, nil
}

// manifestEdit is the coalesced set of changes for one manifest file.
type manifestEdit struct {
	path string
	// pkg is the package whose manifest lives at path.
	pkg string
	// version is the new version to write, empty when only references
	// change.
	version string
	refs    []ReferenceUpdate
}

// applyPlan writes every planned edit, best effort. Edits are coalesced
// per manifest path and written in parallel across distinct paths; a
// failed write is recorded in report.Errors and does not stop the rest.
func (b *Bumper) applyPlan(ctx context.Context, report *Report) {
	edits := make(map[string]*manifestEdit)
	editFor := func(pkgName string) *manifestEdit {
		p := b.graph.Get(pkgName)
		path := p.ManifestPath()
		e, ok := edits[path]
		if !ok {
			e = &manifestEdit{path: path, pkg: pkgName}
			edits[path] = e
		}
		return e
	}

	for name, version := range report.PrimaryBumps {
		editFor(name).version = version
	}
	for name, version := range report.CascadeBumps {
		editFor(name).version = version
	}
	for _, u := range report.ReferenceUpdates {
		e := editFor(u.Package)
		e.refs = append(e.refs, u)
	}

	paths := make([]string, 0, len(edits))
	for path := range edits {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		edit := edits[path]
		g.Go(func() error {
			if err := b.writeManifest(gctx, edit); err != nil {
				mu.Lock()
				report.Errors = append(report.Errors, err.Error())
				mu.Unlock()
			}
			// Best-effort apply: never cancel sibling writes.
			return nil
		})
	}
	g.Wait()
}

// writeManifest performs the single read-modify-write for one manifest.
func (b *Bumper) writeManifest(ctx context.Context, edit *manifestEdit) error {
	src, err := b.fs.ReadFile(ctx, edit.path)
	if err != nil {
		return fmt.Errorf("bump %s: %w", edit.pkg, err)
	}
	editor, err := manifest.NewEditor(src)
	if err != nil {
		return fmt.Errorf("bump %s: %w", edit.pkg, err)
	}

	if edit.version != "" {
		editor.SetVersion(edit.version)
	}
	for _, u := range edit.refs {
		// Rewrite every section that holds the key.
		for _, section := range referenceSections {
			if editor.Has(section, u.Dependency) {
				editor.UpdateDependency(section, u.Dependency, u.ToRef)
			}
		}
	}

	out, err := editor.Save()
	if err != nil {
		return fmt.Errorf("bump %s: %w", edit.pkg, err)
	}
	if err := b.fs.WriteFile(ctx, edit.path, out, 0o644); err != nil {
		return fmt.Errorf("bump %s: %w", edit.pkg, err)
	}
	return nil
}
