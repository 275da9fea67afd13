// Package manifest parses package.json files into normalized records and
// edits them without disturbing unrelated content.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel errors for manifest handling.
var (
	// ErrParse indicates the manifest is not valid JSON.
	ErrParse = fmt.Errorf("manifest parse error")
	// ErrSchema indicates the manifest violates the manifest schema
	// (missing name, bad name grammar, invalid version).
	ErrSchema = fmt.Errorf("manifest schema error")
)

// namePattern is the npm-style package name grammar: optional @scope/
// prefix, each part starting with an alphanumeric and continuing with
// URL-safe characters. Matched case-insensitively.
var namePattern = regexp.MustCompile(`^(?i)(@[a-z0-9][-a-z0-9._~]*/)?[a-z0-9][-a-z0-9._~]*$`)

// MaxNameLength is the npm registry limit on package names.
const MaxNameLength = 214

// ValidName reports whether name conforms to the package name grammar.
func ValidName(name string) bool {
	if name == "" || len(name) > MaxNameLength {
		return false
	}
	return namePattern.MatchString(name)
}

// Person is a package author or contributor. package.json allows either
// a structured object or a free-form "Name <email> (url)" string; the
// raw form is kept so edits can round-trip it.
type Person struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
	// Raw is the original free-form string, empty when the source was
	// structured.
	Raw string `json:"-"`
}

// UnmarshalJSON accepts both the object and string forms.
func (p *Person) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		p.Raw = s
		return nil
	}
	type alias Person
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Person(a)
	return nil
}

// MarshalJSON writes back whichever form was read.
func (p Person) MarshalJSON() ([]byte, error) {
	if p.Raw != "" {
		return json.Marshal(p.Raw)
	}
	type alias Person
	return json.Marshal(alias(p))
}

// Repository is the manifest repository field, either a bare URL string
// or a {type,url,directory} object.
type Repository struct {
	Type      string `json:"type,omitempty"`
	URL       string `json:"url,omitempty"`
	Directory string `json:"directory,omitempty"`
	// Raw is the original URL string, empty when the source was structured.
	Raw string `json:"-"`
}

// UnmarshalJSON accepts both the object and string forms.
func (r *Repository) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.Raw = s
		return nil
	}
	type alias Repository
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Repository(a)
	return nil
}

// MarshalJSON writes back whichever form was read.
func (r Repository) MarshalJSON() ([]byte, error) {
	if r.Raw != "" {
		return json.Marshal(r.Raw)
	}
	type alias Repository
	return json.Marshal(alias(r))
}

// Workspaces is the workspaces declaration: either a plain list of glob
// patterns or an object with a "packages" list.
type Workspaces struct {
	// Patterns is the normalized list of glob patterns.
	Patterns []string
	// objectForm records which syntax the source used.
	objectForm bool
}

// UnmarshalJSON accepts both declaration syntaxes.
func (w *Workspaces) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		w.Patterns = list
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("workspaces must be a string list or {packages: [...]}: %w", err)
	}
	w.Patterns = obj.Packages
	w.objectForm = true
	return nil
}

// MarshalJSON writes back whichever form was read.
func (w Workspaces) MarshalJSON() ([]byte, error) {
	if w.objectForm {
		return json.Marshal(struct {
			Packages []string `json:"packages"`
		}{w.Patterns})
	}
	return json.Marshal(w.Patterns)
}

// Manifest is a normalized package.json record.
type Manifest struct {
	// Name is the package name; unique per workspace.
	Name string `json:"name"`
	// Version is the package version, always valid semver.
	Version string `json:"version"`

	Description string `json:"description,omitempty"`
	License     string `json:"license,omitempty"`
	Main        string `json:"main,omitempty"`
	Private     bool   `json:"private,omitempty"`

	Author     *Person     `json:"author,omitempty"`
	Repository *Repository `json:"repository,omitempty"`

	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`

	Scripts map[string]string `json:"scripts,omitempty"`

	Workspaces *Workspaces `json:"workspaces,omitempty"`

	// Extra holds every field not modeled above, verbatim, so edits
	// round-trip unknown content.
	Extra map[string]json.RawMessage `json:"-"`
}

// knownFields are the manifest keys parsed into struct fields.
var knownFields = map[string]bool{
	"name": true, "version": true, "description": true, "license": true,
	"main": true, "private": true, "author": true, "repository": true,
	"dependencies": true, "devDependencies": true, "peerDependencies": true,
	"optionalDependencies": true, "scripts": true, "workspaces": true,
}

// DependencySections lists the manifest dependency map keys in their
// conventional order.
var DependencySections = []string{
	"dependencies", "devDependencies", "peerDependencies", "optionalDependencies",
}

// Parse decodes a package.json document. The returned warnings flag
// suspicious-but-tolerated content, currently dependencies that appear
// in more than one dependency section.
func Parse(data []byte) (*Manifest, []string, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if m.Name == "" {
		return nil, nil, fmt.Errorf("%w: missing name", ErrSchema)
	}
	if !ValidName(m.Name) {
		return nil, nil, fmt.Errorf("%w: invalid package name %q", ErrSchema, m.Name)
	}
	if m.Version == "" {
		return nil, nil, fmt.Errorf("%w: package %q missing version", ErrSchema, m.Name)
	}
	if !validVersion(m.Version) {
		return nil, nil, fmt.Errorf("%w: package %q has invalid version %q", ErrSchema, m.Name, m.Version)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}

	return &m, duplicateDependencyWarnings(&m), nil
}

// duplicateDependencyWarnings reports dependencies listed in more than
// one of the four dependency sections.
func duplicateDependencyWarnings(m *Manifest) []string {
	seen := map[string]string{}
	var warnings []string
	for _, section := range DependencySections {
		for name := range m.DependencyMap(section) {
			if prev, ok := seen[name]; ok {
				warnings = append(warnings, fmt.Sprintf(
					"package %s: dependency %q appears in both %s and %s",
					m.Name, name, prev, section))
				continue
			}
			seen[name] = section
		}
	}
	return warnings
}

// DependencyMap returns the named dependency section, or nil for an
// unknown section name.
func (m *Manifest) DependencyMap(section string) map[string]string {
	switch section {
	case "dependencies":
		return m.Dependencies
	case "devDependencies":
		return m.DevDependencies
	case "peerDependencies":
		return m.PeerDependencies
	case "optionalDependencies":
		return m.OptionalDependencies
	}
	return nil
}

// SectionsWith returns the dependency sections that contain name, in
// conventional order.
func (m *Manifest) SectionsWith(name string) []string {
	var sections []string
	for _, section := range DependencySections {
		if _, ok := m.DependencyMap(section)[name]; ok {
			sections = append(sections, section)
		}
	}
	return sections
}

// validVersion reports whether s is acceptable as a manifest version.
func validVersion(s string) bool {
	// Mirrors internal/semver without importing it; manifest is a leaf.
	return versionPattern.MatchString(s)
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*)?(\+[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*)?$`)

// WorkspaceRef reports whether spec uses the workspace: protocol.
func WorkspaceRef(spec string) bool {
	return strings.HasPrefix(spec, "workspace:")
}
