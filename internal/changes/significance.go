package changes

import (
	"context"
	"path"
	"strings"

	"github.com/monorail-dev/monorail/internal/gitx"
)

// suggestBump infers a version bump for one package from the commits
// touching its directory and the kinds of files that changed.
func (a *Analyzer) suggestBump(ctx context.Context, baseRev, name string, changed []string) Significance {
	p := a.graph.Get(name)
	if p == nil {
		return SignificanceNone
	}

	pkgPath := filepathToSlash(p.RelPath)
	if pkgPath == "" {
		pkgPath = "."
	}
	var commits []gitx.Commit
	if got, err := a.repo.CommitsTouching(ctx, baseRev, pkgPath); err == nil {
		commits = got
	}

	breaking := false
	feat := false
	for _, c := range commits {
		if breakingCommit(c.Message) {
			breaking = true
		}
		if featCommit(c.Message) {
			feat = true
		}
	}

	switch {
	case breaking:
		return SignificanceMajor
	case feat:
		return SignificanceMinor
	case touchesPublicAPI(filepathToSlash(p.RelPath), changed):
		return SignificanceMajor
	case len(changed) > 0:
		return SignificancePatch
	}
	return SignificanceNone
}

// breakingCommit reports whether the message carries a breaking-change
// marker: a "!" before the header colon or a BREAKING CHANGE token.
func breakingCommit(message string) bool {
	if strings.Contains(message, "BREAKING CHANGE") {
		return true
	}
	header := message
	if idx := strings.IndexByte(header, '\n'); idx >= 0 {
		header = header[:idx]
	}
	if idx := strings.IndexByte(header, ':'); idx > 0 {
		return strings.HasSuffix(strings.TrimSpace(header[:idx]), "!")
	}
	return false
}

// featCommit reports whether the message header declares a feature
// commit, with or without a scope.
func featCommit(message string) bool {
	header := message
	if idx := strings.IndexByte(header, '\n'); idx >= 0 {
		header = header[:idx]
	}
	idx := strings.IndexByte(header, ':')
	if idx <= 0 {
		return false
	}
	kind := strings.TrimSpace(header[:idx])
	kind = strings.TrimSuffix(kind, "!")
	if open := strings.IndexByte(kind, '('); open >= 0 {
		kind = kind[:open]
	}
	kind = strings.ToLower(kind)
	return kind == "feat" || kind == "feature"
}

// publicAPIFile reports whether rel, a path relative to the package
// root, is part of the package's public surface: its manifest, an entry
// point, the lib tree, or type declarations.
func publicAPIFile(rel string) bool {
	if rel == "package.json" {
		return true
	}
	if strings.HasPrefix(rel, "lib/") {
		return true
	}
	base := path.Base(rel)
	if strings.HasPrefix(base, "index.") || strings.HasPrefix(base, "types.") {
		return true
	}
	return strings.HasSuffix(base, ".d.ts")
}

// touchesPublicAPI reports whether any changed path is a public-API file
// of the package rooted at pkgRel.
func touchesPublicAPI(pkgRel string, changed []string) bool {
	for _, c := range changed {
		rel := c
		if pkgRel != "" && pkgRel != "." {
			var ok bool
			rel, ok = strings.CutPrefix(c, pkgRel+"/")
			if !ok {
				continue
			}
		}
		if publicAPIFile(rel) {
			return true
		}
	}
	return false
}
