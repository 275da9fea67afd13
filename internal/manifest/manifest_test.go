package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasic(t *testing.T) {
	data := []byte(`{
		"name": "@acme/auth",
		"version": "1.2.3",
		"description": "auth package",
		"main": "index.js",
		"private": true,
		"dependencies": {"@acme/core": "^1.0.0", "left-pad": "1.3.0"},
		"devDependencies": {"vitest": "^2.0.0"},
		"scripts": {"build": "tsc", "test": "vitest run"},
		"customField": {"nested": [1, 2, 3]}
	}`)

	m, warnings, err := Parse(data)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "@acme/auth", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	assert.True(t, m.Private)
	assert.Equal(t, "^1.0.0", m.Dependencies["@acme/core"])
	assert.Equal(t, "vitest run", m.Scripts["test"])
	assert.Contains(t, m.Extra, "customField")
}

func TestParseAuthorAndRepositoryForms(t *testing.T) {
	str := []byte(`{"name":"a","version":"1.0.0","author":"Jo <jo@x.io>","repository":"https://x.io/a.git"}`)
	m, _, err := Parse(str)
	require.NoError(t, err)
	assert.Equal(t, "Jo <jo@x.io>", m.Author.Raw)
	assert.Equal(t, "https://x.io/a.git", m.Repository.Raw)

	obj := []byte(`{"name":"a","version":"1.0.0",
		"author":{"name":"Jo","email":"jo@x.io"},
		"repository":{"type":"git","url":"https://x.io/a.git","directory":"packages/a"}}`)
	m, _, err = Parse(obj)
	require.NoError(t, err)
	assert.Equal(t, "Jo", m.Author.Name)
	assert.Equal(t, "packages/a", m.Repository.Directory)
}

func TestParseWorkspacesForms(t *testing.T) {
	list := []byte(`{"name":"root","version":"0.0.0","workspaces":["packages/*","apps/*"]}`)
	m, _, err := Parse(list)
	require.NoError(t, err)
	assert.Equal(t, []string{"packages/*", "apps/*"}, m.Workspaces.Patterns)

	obj := []byte(`{"name":"root","version":"0.0.0","workspaces":{"packages":["libs/*"]}}`)
	m, _, err = Parse(obj)
	require.NoError(t, err)
	assert.Equal(t, []string{"libs/*"}, m.Workspaces.Patterns)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{`, ErrParse},
		{"missing name", `{"version":"1.0.0"}`, ErrSchema},
		{"bad name", `{"name":"UPPER CASE!","version":"1.0.0"}`, ErrSchema},
		{"missing version", `{"name":"a"}`, ErrSchema},
		{"bad version", `{"name":"a","version":"1.2"}`, ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDuplicateDependencyWarning(t *testing.T) {
	data := []byte(`{"name":"a","version":"1.0.0",
		"dependencies":{"x":"1.0.0"},
		"devDependencies":{"x":"1.0.0"}}`)
	_, warnings, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"x"`)
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"lodash", true},
		{"@scope/pkg", true},
		{"lodash.merge", true},
		{"Pkg", true}, // grammar is case-insensitive
		{"", false},
		{"-leading-dash", false},
		{"@/missing", false},
		{"has space", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidName(tt.name), tt.name)
	}
}

func TestEditorPreservesUnrelatedContent(t *testing.T) {
	src := []byte(`{"name":"a","version":"1.0.0","keywords":["x","y"],"dependencies":{"b":"^1.0.0","c":"1.0.0"}}`)
	e, err := NewEditor(src)
	require.NoError(t, err)

	e.SetVersion("1.1.0")
	e.UpdateDependency("dependencies", "b", "^1.1.0")
	out, err := e.Save()
	require.NoError(t, err)

	m, _, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", m.Version)
	assert.Equal(t, "^1.1.0", m.Dependencies["b"])
	assert.Equal(t, "1.0.0", m.Dependencies["c"])
	assert.Contains(t, m.Extra, "keywords")
	assert.JSONEq(t, `["x","y"]`, string(m.Extra["keywords"]))
}

func TestEditorDottedKeys(t *testing.T) {
	src := []byte(`{"name":"a","version":"1.0.0","dependencies":{"lodash.merge":"^4.0.0"}}`)
	e, err := NewEditor(src)
	require.NoError(t, err)
	require.True(t, e.Has("dependencies", "lodash.merge"))

	e.UpdateDependency("dependencies", "lodash.merge", "^4.6.2")
	out, err := e.Save()
	require.NoError(t, err)

	m, _, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "^4.6.2", m.Dependencies["lodash.merge"])
	assert.Len(t, m.Dependencies, 1)
}

func TestEditorRemoveAndScript(t *testing.T) {
	src := []byte(`{"name":"a","version":"1.0.0","dependencies":{"b":"1.0.0"},"scripts":{"test":"jest"}}`)
	e, err := NewEditor(src)
	require.NoError(t, err)

	e.RemoveDependency("dependencies", "b")
	e.UpdateScript("test", "vitest run")
	out, err := e.Save()
	require.NoError(t, err)

	m, _, err := Parse(out)
	require.NoError(t, err)
	assert.NotContains(t, m.Dependencies, "b")
	assert.Equal(t, "vitest run", m.Scripts["test"])
	assert.Zero(t, e.Pending())
}
