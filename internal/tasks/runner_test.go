package tasks

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monorail-dev/monorail/internal/changes"
	"github.com/monorail-dev/monorail/internal/events"
	"github.com/monorail-dev/monorail/internal/execx"
	"github.com/monorail-dev/monorail/internal/manifest"
	"github.com/monorail-dev/monorail/internal/workspace"
)

// chainGraph builds lib <- ui (ui depends on lib).
func chainGraph() *workspace.Graph {
	mk := func(name string, deps ...string) *workspace.Package {
		m := &manifest.Manifest{Name: name, Version: "1.0.0", Dependencies: map[string]string{}}
		for _, d := range deps {
			m.Dependencies[d] = "^1.0.0"
		}
		return &workspace.Package{Manifest: m, AbsPath: "/ws/packages/" + name, RelPath: "packages/" + name}
	}
	return workspace.NewGraph(workspace.KindCustom, "/ws", []*workspace.Package{
		mk("lib"), mk("ui", "lib"),
	})
}

func affectedBoth() *Context {
	return &Context{
		Affected: changes.Affected{
			DirectlyAffected:   map[string]struct{}{"lib": {}},
			DependentsAffected: map[string]struct{}{"ui": {}},
			TotalAffectedCount: 2,
		},
		CurrentBranch: "main",
		Environment:   map[string]string{},
	}
}

func newTestRunner(exec execx.Executor, bus *events.Bus) *Runner {
	g := chainGraph()
	checker := NewChecker(DefaultBranchConfig(), exec, "/ws")
	cfg := DefaultConfig()
	cfg.Concurrency = 1 // deterministic ordering in tests
	return NewRunner(g, checker, exec, bus, cfg)
}

func TestRunSuccess(t *testing.T) {
	exec := &scriptedExecutor{run: func(execx.Command) (execx.Result, error) {
		return execx.Result{ExitCode: 0, Stdout: "ok\n"}, nil
	}}
	r := newTestRunner(exec, nil)

	task := TaskDefinition{
		Name:     "build",
		Commands: []CommandSpec{{Program: "npm", Args: []string{"run", "build"}}},
		Affects:  AffectsDependents,
	}
	result, err := r.Run(context.Background(), task, affectedBoth())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []string{"lib", "ui"}, result.AffectedPackages, "dependencies run first")
	require.Len(t, result.Outputs, 2)
	assert.Equal(t, 2, result.Stats.CommandsExecuted)
	assert.Equal(t, 2, result.Stats.CommandsSucceeded)
	assert.Equal(t, 2, result.Stats.PackagesProcessed)
	assert.Equal(t, int64(6), result.Stats.StdoutBytes)

	// Commands run in the package directory.
	assert.Equal(t, "/ws/packages/lib", exec.calls[0].Dir)
	assert.Equal(t, "/ws/packages/ui", exec.calls[1].Dir)
}

func TestRunSkippedByBranchCondition(t *testing.T) {
	exec := &scriptedExecutor{run: func(execx.Command) (execx.Result, error) {
		return execx.Result{}, nil
	}}
	r := newTestRunner(exec, nil)

	ectx := affectedBoth()
	ectx.CurrentBranch = "feature/x"

	task := TaskDefinition{
		Name:       "release",
		Commands:   []CommandSpec{{Program: "npm", Args: []string{"publish"}}},
		Conditions: []Condition{OnBranch{Kind: BranchIsMain}},
		Affects:    AffectsAll,
	}
	result, err := r.Run(context.Background(), task, ectx)
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, "conditions-false", result.Reason)
	assert.Empty(t, exec.calls, "no subprocess spawns for a skipped task")
	assert.Empty(t, result.Outputs)
}

func TestRunFailureAbortsPackageCommands(t *testing.T) {
	exec := &scriptedExecutor{run: func(cmd execx.Command) (execx.Result, error) {
		if cmd.Args[0] == "lint" {
			return execx.Result{ExitCode: 2}, nil
		}
		return execx.Result{}, nil
	}}
	r := newTestRunner(exec, nil)

	task := TaskDefinition{
		Name: "verify",
		Commands: []CommandSpec{
			{Program: "npm", Args: []string{"lint"}},
			{Program: "npm", Args: []string{"test"}},
		},
		Affects: AffectsSelf,
	}
	result, err := r.Run(context.Background(), task, affectedBoth())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "exit(2)", result.Reason)
	require.Len(t, result.Outputs, 1, "second command never ran")
	assert.Equal(t, 1, result.Stats.CommandsFailed)
	assert.Contains(t, result.Errors[0], "lib")
}

func TestRunContinueOnError(t *testing.T) {
	exec := &scriptedExecutor{run: func(cmd execx.Command) (execx.Result, error) {
		if cmd.Args[0] == "lint" {
			return execx.Result{ExitCode: 1}, nil
		}
		return execx.Result{}, nil
	}}
	r := newTestRunner(exec, nil)

	task := TaskDefinition{
		Name: "verify",
		Commands: []CommandSpec{
			{Program: "npm", Args: []string{"lint"}},
			{Program: "npm", Args: []string{"test"}},
		},
		Affects:         AffectsSelf,
		ContinueOnError: true,
	}
	result, err := r.Run(context.Background(), task, affectedBoth())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "exit(1)", result.Reason, "first failure's reason sticks")
	require.Len(t, result.Outputs, 2, "second command still ran")
	assert.Equal(t, 1, result.Stats.CommandsSucceeded)
	assert.Equal(t, 1, result.Stats.CommandsFailed)
}

func TestRunSpawnErrorCountsAsFailed(t *testing.T) {
	exec := &scriptedExecutor{run: func(execx.Command) (execx.Result, error) {
		return execx.Result{}, fmt.Errorf("%w: nosuchtool: not found", execx.ErrSpawn)
	}}
	r := newTestRunner(exec, nil)

	task := TaskDefinition{
		Name:     "broken",
		Commands: []CommandSpec{{Program: "nosuchtool"}},
		Affects:  AffectsSelf,
	}
	result, err := r.Run(context.Background(), task, affectedBoth())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "spawn-error", result.Reason)
	assert.Equal(t, 0, result.Stats.CommandsSucceeded)
	assert.Equal(t, 1, result.Stats.CommandsFailed)
	require.Len(t, result.Outputs, 1)
	assert.Equal(t, -1, result.Outputs[0].ExitCode)
}

func TestRunTimeout(t *testing.T) {
	exec := &scriptedExecutor{run: func(cmd execx.Command) (execx.Result, error) {
		return execx.Result{ExitCode: -1, TimedOut: true},
			fmt.Errorf("%w after 1s: npm", execx.ErrTimeout)
	}}
	r := newTestRunner(exec, nil)

	task := TaskDefinition{
		Name:     "slow",
		Commands: []CommandSpec{{Program: "npm", Args: []string{"run", "e2e"}}},
		Affects:  AffectsSelf,
	}
	result, err := r.Run(context.Background(), task, affectedBoth())
	require.NoError(t, err)

	assert.Equal(t, StatusTimedOut, result.Status)
	require.Len(t, result.Outputs, 1)
	assert.True(t, result.Outputs[0].TimedOut)
}

func TestRunSelectors(t *testing.T) {
	count := func(sel Selector) int {
		exec := &scriptedExecutor{run: func(execx.Command) (execx.Result, error) {
			return execx.Result{}, nil
		}}
		r := newTestRunner(exec, nil)
		task := TaskDefinition{
			Name:     "t",
			Commands: []CommandSpec{{Program: "true"}},
			Affects:  sel,
		}
		result, err := r.Run(context.Background(), task, affectedBoth())
		require.NoError(t, err)
		return result.Stats.PackagesProcessed
	}

	assert.Equal(t, 1, count(AffectsSelf))
	assert.Equal(t, 2, count(AffectsDependents))
	assert.Equal(t, 2, count(AffectsAll))
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	exec := &scriptedExecutor{run: func(execx.Command) (execx.Result, error) {
		return execx.Result{}, nil
	}}
	bus := events.NewBus(16)
	r := newTestRunner(exec, bus)

	task := TaskDefinition{
		Name:     "build",
		Commands: []CommandSpec{{Program: "true"}},
		Affects:  AffectsSelf,
	}
	_, err := r.Run(context.Background(), task, affectedBoth())
	require.NoError(t, err)

	var statuses []string
	bus.Subscribe(events.ByType{Variant: events.VariantTask}, func(e events.Event) error {
		data, err := e.TaskData()
		require.NoError(t, err)
		statuses = append(statuses, data.Status)
		return nil
	})
	bus.Process(10)

	assert.Equal(t, []string{"started", "succeeded"}, statuses)
}
