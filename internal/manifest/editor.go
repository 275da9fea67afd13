package manifest

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Editor accumulates primitive edits against a raw package.json document
// and applies them in order on Save. Everything the edits do not touch
// is preserved byte-for-byte, comments-in-strings and field order
// included, because edits run directly on the source bytes.
type Editor struct {
	src []byte
	ops []editOp
}

type editOp struct {
	// kind is one of set, delete.
	kind string
	path string
	// value is ignored for delete ops.
	value any
}

// NewEditor creates an editor over a raw manifest document.
// The document must be valid JSON.
func NewEditor(src []byte) (*Editor, error) {
	if !gjson.ValidBytes(src) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrParse)
	}
	return &Editor{src: src}, nil
}

// escapeKey escapes a map key for use in a gjson/sjson path. Package
// names may contain dots ("lodash.merge") which would otherwise split
// the path.
func escapeKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`)
	return r.Replace(key)
}

// SetVersion records a version change.
func (e *Editor) SetVersion(version string) {
	e.ops = append(e.ops, editOp{kind: "set", path: "version", value: version})
}

// SetField records a change to an arbitrary top-level field.
func (e *Editor) SetField(field string, value any) {
	e.ops = append(e.ops, editOp{kind: "set", path: escapeKey(field), value: value})
}

// AddDependency records a new dependency in the given section.
func (e *Editor) AddDependency(section, name, spec string) {
	e.ops = append(e.ops, editOp{
		kind:  "set",
		path:  section + "." + escapeKey(name),
		value: spec,
	})
}

// UpdateDependency records a change to an existing dependency spec.
// Same primitive as AddDependency; kept separate so call sites read as
// what they mean.
func (e *Editor) UpdateDependency(section, name, spec string) {
	e.AddDependency(section, name, spec)
}

// RemoveDependency records removal of a dependency from a section.
func (e *Editor) RemoveDependency(section, name string) {
	e.ops = append(e.ops, editOp{kind: "delete", path: section + "." + escapeKey(name)})
}

// UpdateScript records a change to a script entry.
func (e *Editor) UpdateScript(name, command string) {
	e.ops = append(e.ops, editOp{kind: "set", path: "scripts." + escapeKey(name), value: command})
}

// Has reports whether the document currently contains the given
// dependency, taking pending ops into account is not attempted; this
// reads the source document only.
func (e *Editor) Has(section, name string) bool {
	return gjson.GetBytes(e.src, section+"."+escapeKey(name)).Exists()
}

// Version returns the version field of the source document.
func (e *Editor) Version() string {
	return gjson.GetBytes(e.src, "version").String()
}

// Pending returns the number of recorded, unapplied ops.
func (e *Editor) Pending() int {
	return len(e.ops)
}

// Save applies all recorded ops in order and returns the new document.
// The editor's source is advanced so further edits stack.
func (e *Editor) Save() ([]byte, error) {
	out := e.src
	var err error
	for _, op := range e.ops {
		switch op.kind {
		case "set":
			out, err = sjson.SetBytes(out, op.path, op.value)
		case "delete":
			out, err = sjson.DeleteBytes(out, op.path)
		}
		if err != nil {
			return nil, fmt.Errorf("apply edit %s %s: %w", op.kind, op.path, err)
		}
	}
	e.src = out
	e.ops = nil
	return out, nil
}
