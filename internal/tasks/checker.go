package tasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/monorail-dev/monorail/internal/changes"
	"github.com/monorail-dev/monorail/internal/execx"
	"github.com/monorail-dev/monorail/internal/semver"
)

// Sentinel errors for condition evaluation.
var (
	// ErrAsyncCondition indicates a synchronous check encountered a
	// condition that needs a subprocess.
	ErrAsyncCondition = errors.New("async condition in sync check")
	// ErrUnknownChecker indicates an EnvCustom condition named a checker
	// that was never registered.
	ErrUnknownChecker = errors.New("unknown environment checker")
)

// BranchConfig is the user-configured branch classification. Entries
// are glob patterns matched against the whole branch name.
type BranchConfig struct {
	Main    []string `json:"main" mapstructure:"main"`
	Feature []string `json:"feature" mapstructure:"feature"`
	Release []string `json:"release" mapstructure:"release"`
	Hotfix  []string `json:"hotfix" mapstructure:"hotfix"`
}

// DefaultBranchConfig returns the conventional branch layout.
func DefaultBranchConfig() BranchConfig {
	return BranchConfig{
		Main:    []string{"main", "master"},
		Feature: []string{"feature/*", "feat/*"},
		Release: []string{"release/*"},
		Hotfix:  []string{"hotfix/*"},
	}
}

// EnvChecker is a registered predicate for EnvCustom conditions.
type EnvChecker func(ctx context.Context, ectx *Context) (bool, error)

// Checker evaluates conditions against an execution context.
type Checker struct {
	branches    BranchConfig
	exec        execx.Executor
	root        string
	envCheckers map[string]EnvChecker
}

// NewChecker creates a condition checker. exec is only used by
// CustomScript conditions and may be nil when CheckAsync is never
// called.
func NewChecker(branches BranchConfig, exec execx.Executor, root string) *Checker {
	return &Checker{
		branches:    branches,
		exec:        exec,
		root:        root,
		envCheckers: make(map[string]EnvChecker),
	}
}

// RegisterEnvChecker installs a named predicate for EnvCustom
// conditions.
func (c *Checker) RegisterEnvChecker(name string, fn EnvChecker) {
	c.envCheckers[name] = fn
}

// CheckSync evaluates the conditions without spawning subprocesses.
// It returns ErrAsyncCondition when the list contains an async
// condition; callers should consult HasAsync first.
func (c *Checker) CheckSync(conditions []Condition, ectx *Context) (bool, error) {
	return c.checkAll(context.Background(), conditions, ectx, false)
}

// CheckAsync evaluates the conditions, running subprocesses where
// needed.
func (c *Checker) CheckAsync(ctx context.Context, conditions []Condition, ectx *Context) (bool, error) {
	return c.checkAll(ctx, conditions, ectx, true)
}

// checkAll treats the list as an implicit AND; an empty list passes.
func (c *Checker) checkAll(ctx context.Context, conditions []Condition, ectx *Context, allowAsync bool) (bool, error) {
	for _, cond := range conditions {
		ok, err := c.eval(ctx, cond, ectx, allowAsync)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c *Checker) eval(ctx context.Context, cond Condition, ectx *Context, allowAsync bool) (bool, error) {
	switch v := cond.(type) {
	case PackagesChanged:
		for _, name := range v.Packages {
			if ectx.Affected.Contains(name) {
				return true, nil
			}
		}
		return false, nil

	case FilesChanged:
		for _, file := range ectx.ChangedFiles {
			if matchesPatterns(file, v.Patterns) {
				return true, nil
			}
		}
		return false, nil

	case DependenciesChanged:
		for _, hint := range ectx.Hints {
			if hintMatches(hint, v) {
				return true, nil
			}
		}
		return false, nil

	case OnBranch:
		return c.branchMatches(v, ectx.CurrentBranch), nil

	case Environment:
		return c.evalEnv(ctx, v, ectx, allowAsync)

	case All:
		return c.checkAll(ctx, v.Conditions, ectx, allowAsync)

	case Any:
		for _, inner := range v.Conditions {
			ok, err := c.eval(ctx, inner, ectx, allowAsync)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case Not:
		if v.Condition == nil {
			return false, fmt.Errorf("not condition without inner condition")
		}
		ok, err := c.eval(ctx, v.Condition, ectx, allowAsync)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case CustomScript:
		if !allowAsync {
			return false, fmt.Errorf("%w: custom script", ErrAsyncCondition)
		}
		return c.runScript(ctx, v, ectx)

	case nil:
		return true, nil
	}
	return false, fmt.Errorf("unsupported condition type %T", cond)
}

func (c *Checker) evalEnv(ctx context.Context, v Environment, ectx *Context, allowAsync bool) (bool, error) {
	switch v.Kind {
	case EnvVariableExists:
		_, ok := ectx.Getenv(v.Name)
		return ok, nil
	case EnvVariableEquals:
		val, _ := ectx.Getenv(v.Name)
		return val == v.Value, nil
	case EnvVariableMatches:
		val, _ := ectx.Getenv(v.Name)
		return matchRegexOrEqual(v.Value, val), nil
	case EnvIs:
		return DetectEnvironment(ectx.Environment) == v.Env, nil
	case EnvOneOf:
		current := DetectEnvironment(ectx.Environment)
		for _, e := range v.Envs {
			if e == current {
				return true, nil
			}
		}
		return false, nil
	case EnvNot:
		if v.Inner == nil {
			return false, fmt.Errorf("environment not-condition without inner condition")
		}
		ok, err := c.evalEnv(ctx, *v.Inner, ectx, allowAsync)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case EnvCustom:
		if !allowAsync {
			return false, fmt.Errorf("%w: environment checker %q", ErrAsyncCondition, v.Checker)
		}
		fn, ok := c.envCheckers[v.Checker]
		if !ok {
			return false, fmt.Errorf("%w: %q", ErrUnknownChecker, v.Checker)
		}
		return fn(ctx, ectx)
	}
	return false, fmt.Errorf("unsupported environment condition %q", v.Kind)
}

// branchMatches classifies the branch per the condition kind.
func (c *Checker) branchMatches(v OnBranch, branch string) bool {
	switch v.Kind {
	case BranchEquals:
		return branch == v.Value
	case BranchMatches:
		return globMatch(v.Value, branch)
	case BranchOneOf:
		for _, b := range v.Values {
			if b == branch {
				return true
			}
		}
		return false
	case BranchNoneOf:
		for _, b := range v.Values {
			if b == branch {
				return false
			}
		}
		return true
	case BranchIsMain:
		return matchAnyGlob(c.branches.Main, branch)
	case BranchIsFeature:
		return matchAnyGlob(c.branches.Feature, branch)
	case BranchIsRelease:
		return matchAnyGlob(c.branches.Release, branch)
	case BranchIsHotfix:
		return matchAnyGlob(c.branches.Hotfix, branch)
	}
	return false
}

// runScript spawns the condition's script through the platform shell.
func (c *Checker) runScript(ctx context.Context, v CustomScript, ectx *Context) (bool, error) {
	dir := ectx.WorkingDir
	if dir == "" {
		dir = c.root
	}
	result, err := c.exec.Execute(ctx, execx.ShellCommand(v.Script, dir))
	if err != nil {
		return false, fmt.Errorf("condition script: %w", err)
	}
	if v.ExpectedOutput != nil {
		return strings.TrimSpace(result.Stdout) == strings.TrimSpace(*v.ExpectedOutput), nil
	}
	return result.ExitCode == 0, nil
}

// matchesPatterns applies a FilesChanged pattern list to one path: the
// path must match at least one non-exclude pattern (or the list has
// none) and no exclude pattern.
func matchesPatterns(path string, patterns []FilePattern) bool {
	included := true
	hasInclude := false
	for _, p := range patterns {
		if !p.Exclude {
			hasInclude = true
			break
		}
	}
	if hasInclude {
		included = false
		for _, p := range patterns {
			if !p.Exclude && matchPattern(path, p) {
				included = true
				break
			}
		}
	}
	if !included {
		return false
	}
	for _, p := range patterns {
		if p.Exclude && matchPattern(path, p) {
			return false
		}
	}
	return true
}

func matchPattern(path string, p FilePattern) bool {
	switch p.Kind {
	case PatternExact:
		return path == p.Pattern
	case PatternPrefix:
		return strings.HasPrefix(path, p.Pattern)
	case PatternSuffix:
		return strings.HasSuffix(path, p.Pattern)
	case PatternGlob:
		return globMatch(p.Pattern, path)
	case PatternRegex:
		return matchRegexOrEqual(p.Pattern, path)
	}
	return false
}

// matchRegexOrEqual compiles pattern and matches value; an invalid
// pattern logs once and degrades to string equality.
func matchRegexOrEqual(pattern, value string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("tasks: invalid regex %q, falling back to equality: %v", pattern, err)
		return pattern == value
	}
	return re.MatchString(value)
}

func globMatch(pattern, value string) bool {
	ok, err := doublestar.Match(pattern, value)
	return err == nil && ok
}

func matchAnyGlob(patterns []string, value string) bool {
	for _, p := range patterns {
		if globMatch(p, value) {
			return true
		}
	}
	return false
}

// hintMatches applies a DependenciesChanged filter to one hint.
func hintMatches(hint changes.DependencyHint, v DependenciesChanged) bool {
	if len(v.Include) > 0 && !matchAnyGlob(v.Include, hint.Name) {
		return false
	}
	if matchAnyGlob(v.Exclude, hint.Name) {
		return false
	}
	switch v.VersionChange {
	case "", VersionChangeAny, VersionChangePatchOrHigher:
		return true
	case VersionChangeMinorOrMajor:
		level := hintLevel(hint)
		return level == "major" || level == "minor"
	case VersionChangeMajor:
		return hintLevel(hint) == "major"
	}
	return false
}

// hintLevel classifies how far a dependency moved. Added and removed
// entries, and unparseable specs, count as major.
func hintLevel(hint changes.DependencyHint) string {
	if hint.Kind == changes.HintAdded || hint.Kind == changes.HintRemoved {
		return "major"
	}
	from, okFrom := parseSpec(hint.From)
	to, okTo := parseSpec(hint.To)
	if !okFrom || !okTo {
		return "major"
	}
	switch {
	case from.Major != to.Major:
		return "major"
	case from.Minor != to.Minor:
		return "minor"
	default:
		return "patch"
	}
}

// parseSpec strips range operators off a version spec and parses the
// rest.
func parseSpec(spec string) (semver.Version, bool) {
	spec = strings.TrimPrefix(spec, "workspace:")
	spec = strings.TrimLeft(spec, "^~=v")
	spec = strings.TrimSpace(spec)
	ver, err := semver.Parse(spec)
	if err != nil {
		return semver.Version{}, false
	}
	return ver, true
}
