package changes

import (
	"sort"
	"strings"

	"github.com/monorail-dev/monorail/internal/manifest"
	"github.com/monorail-dev/monorail/internal/semver"
)

// DiffDependencies compares the four dependency sections of two
// manifest revisions and emits one hint per changed entry.
func DiffDependencies(base, head *manifest.Manifest) []DependencyHint {
	var hints []DependencyHint
	for _, section := range manifest.DependencySections {
		baseDeps := base.DependencyMap(section)
		headDeps := head.DependencyMap(section)

		// Deterministic order: base keys sorted, then new head keys.
		for _, name := range sortedKeys(baseDeps) {
			from := baseDeps[name]
			to, ok := headDeps[name]
			if !ok {
				hints = append(hints, DependencyHint{Kind: HintRemoved, Section: section, Name: name, From: from})
				continue
			}
			if from == to {
				continue
			}
			kind := HintUpgraded
			if specCompare(from, to) > 0 {
				kind = HintDowngraded
			}
			hints = append(hints, DependencyHint{Kind: kind, Section: section, Name: name, From: from, To: to})
		}
		for _, name := range sortedKeys(headDeps) {
			if _, ok := baseDeps[name]; !ok {
				hints = append(hints, DependencyHint{Kind: HintAdded, Section: section, Name: name, To: headDeps[name]})
			}
		}
	}
	return hints
}

// specCompare orders two version specs by their underlying versions.
// Specs that cannot be coerced to semver compare as equal, which makes
// the change read as an upgrade.
func specCompare(a, b string) int {
	va, oka := coerceSpec(a)
	vb, okb := coerceSpec(b)
	if !oka || !okb {
		return 0
	}
	return semver.Compare(va, vb)
}

// coerceSpec strips range operators and the workspace: protocol off a
// version spec and parses what remains.
func coerceSpec(spec string) (semver.Version, bool) {
	spec = strings.TrimPrefix(spec, "workspace:")
	spec = strings.TrimLeft(spec, "^~=v")
	spec = strings.TrimPrefix(spec, ">")
	spec = strings.TrimSpace(spec)
	v, err := semver.Parse(spec)
	if err != nil {
		return semver.Version{}, false
	}
	return v, true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
