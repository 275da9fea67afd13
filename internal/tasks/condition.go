package tasks

import "strings"

// Condition gates task execution. Conditions form a small algebra;
// Async reports whether evaluating the condition may spawn a
// subprocess, recursively through the combinators.
type Condition interface {
	Async() bool
}

// PackagesChanged is true when any listed package is affected, directly
// or as a dependent.
type PackagesChanged struct {
	Packages []string
}

func (PackagesChanged) Async() bool { return false }

// PatternKind selects how a FilePattern matches.
type PatternKind string

const (
	// PatternExact matches the whole path.
	PatternExact PatternKind = "exact"
	// PatternPrefix matches a leading path fragment.
	PatternPrefix PatternKind = "prefix"
	// PatternSuffix matches a trailing path fragment.
	PatternSuffix PatternKind = "suffix"
	// PatternGlob matches with *, ?, [seq], [!seq].
	PatternGlob PatternKind = "glob"
	// PatternRegex matches a regular expression. Invalid expressions
	// fall back to equality.
	PatternRegex PatternKind = "regex"
)

// FilePattern is one pattern of a FilesChanged condition.
type FilePattern struct {
	Kind    PatternKind
	Pattern string
	// Exclude inverts the pattern: a path matching it is rejected.
	Exclude bool
}

// FilesChanged is true when any changed file passes the pattern list:
// it matches at least one non-exclude pattern (or there are none) and
// matches no exclude pattern.
type FilesChanged struct {
	Patterns []FilePattern
}

func (FilesChanged) Async() bool { return false }

// VersionChangeLevel filters dependency hints by how far the version
// moved.
type VersionChangeLevel string

const (
	VersionChangeAny           VersionChangeLevel = "any"
	VersionChangePatchOrHigher VersionChangeLevel = "patch-or-higher"
	VersionChangeMinorOrMajor  VersionChangeLevel = "minor-or-major"
	VersionChangeMajor         VersionChangeLevel = "major"
)

// DependenciesChanged is true when any dependency hint passes the
// name and level filters. Empty Include admits every name.
type DependenciesChanged struct {
	// Include and Exclude are glob patterns over dependency names.
	Include []string
	Exclude []string
	// VersionChange is the minimum movement; empty means any.
	VersionChange VersionChangeLevel
}

func (DependenciesChanged) Async() bool { return false }

// BranchCondKind selects how an OnBranch condition decides.
type BranchCondKind string

const (
	BranchEquals    BranchCondKind = "equals"
	BranchMatches   BranchCondKind = "matches"
	BranchOneOf     BranchCondKind = "one-of"
	BranchNoneOf    BranchCondKind = "none-of"
	BranchIsMain    BranchCondKind = "is-main"
	BranchIsFeature BranchCondKind = "is-feature"
	BranchIsRelease BranchCondKind = "is-release"
	BranchIsHotfix  BranchCondKind = "is-hotfix"
)

// OnBranch is true when the current branch satisfies the condition.
// The Is* kinds classify against the checker's branch configuration.
type OnBranch struct {
	Kind BranchCondKind
	// Value is the branch name or glob for Equals and Matches.
	Value string
	// Values is the list for OneOf and NoneOf.
	Values []string
}

func (OnBranch) Async() bool { return false }

// Env is a recognized runtime environment.
type Env string

const (
	EnvDevelopment Env = "development"
	EnvStaging     Env = "staging"
	EnvIntegration Env = "integration"
	EnvProduction  Env = "production"
)

// DetectEnvironment classifies the environment from the variable map:
// NODE_ENV first, then ENVIRONMENT, lowercased. Unset defaults to
// development; unrecognized values pass through as custom environments.
func DetectEnvironment(vars map[string]string) Env {
	raw := vars["NODE_ENV"]
	if raw == "" {
		raw = vars["ENVIRONMENT"]
	}
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "", "development", "dev":
		return EnvDevelopment
	case "staging":
		return EnvStaging
	case "integration":
		return EnvIntegration
	case "production", "prod":
		return EnvProduction
	}
	return Env(raw)
}

// EnvCondKind selects how an Environment condition decides.
type EnvCondKind string

const (
	EnvVariableExists  EnvCondKind = "variable-exists"
	EnvVariableEquals  EnvCondKind = "variable-equals"
	EnvVariableMatches EnvCondKind = "variable-matches"
	EnvIs              EnvCondKind = "is"
	EnvOneOf           EnvCondKind = "one-of"
	EnvNot             EnvCondKind = "not"
	// EnvCustom delegates to a named checker registered on the Checker.
	// It is the one asynchronous environment condition.
	EnvCustom EnvCondKind = "custom"
)

// Environment is a condition over the context's variable map or the
// detected environment.
type Environment struct {
	Kind EnvCondKind
	// Name and Value serve the variable kinds.
	Name  string
	Value string
	// Env serves Is; Envs serves OneOf.
	Env  Env
	Envs []Env
	// Inner serves Not.
	Inner *Environment
	// Checker names the registered checker for Custom.
	Checker string
}

func (e Environment) Async() bool {
	if e.Kind == EnvCustom {
		return true
	}
	if e.Kind == EnvNot && e.Inner != nil {
		return e.Inner.Async()
	}
	return false
}

// All is true when every inner condition is true; empty is true.
type All struct {
	Conditions []Condition
}

func (a All) Async() bool { return anyAsync(a.Conditions) }

// Any is true when at least one inner condition is true; empty is false.
type Any struct {
	Conditions []Condition
}

func (a Any) Async() bool { return anyAsync(a.Conditions) }

// Not negates its inner condition.
type Not struct {
	Condition Condition
}

func (n Not) Async() bool { return n.Condition != nil && n.Condition.Async() }

// CustomScript runs a shell script; true on exit 0, or on trimmed
// stdout equality when ExpectedOutput is set.
type CustomScript struct {
	Script string
	// ExpectedOutput, when non-nil, switches from exit-code to output
	// comparison.
	ExpectedOutput *string
}

func (CustomScript) Async() bool { return true }

// HasAsync reports whether any condition in the list may spawn a
// subprocess.
func HasAsync(conditions []Condition) bool {
	return anyAsync(conditions)
}

func anyAsync(conditions []Condition) bool {
	for _, c := range conditions {
		if c != nil && c.Async() {
			return true
		}
	}
	return false
}
