package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/monorail-dev/monorail/internal/events"
	"github.com/monorail-dev/monorail/internal/execx"
	"github.com/monorail-dev/monorail/internal/workspace"
)

// Config bounds task execution.
type Config struct {
	// Concurrency is the cross-package parallelism limit.
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
	// CommandTimeout bounds each command's wall-clock time.
	CommandTimeout time.Duration `json:"command_timeout" mapstructure:"command_timeout"`
	// GracePeriod is the SIGTERM-to-SIGKILL window on timeout.
	GracePeriod time.Duration `json:"grace_period" mapstructure:"grace_period"`
	// MaxOutputBytes caps captured stdout and stderr per command.
	MaxOutputBytes int `json:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// DefaultConfig returns the stock runner limits.
func DefaultConfig() Config {
	return Config{
		Concurrency:    runtime.NumCPU(),
		CommandTimeout: execx.DefaultTimeout,
		GracePeriod:    execx.DefaultGracePeriod,
		MaxOutputBytes: execx.DefaultMaxOutputBytes,
	}
}

// Runner executes task definitions across affected packages.
type Runner struct {
	graph   *workspace.Graph
	checker *Checker
	exec    execx.Executor
	bus     *events.Bus
	cfg     Config
}

// NewRunner creates a task runner. bus may be nil; when set, task
// lifecycle events are emitted to it.
func NewRunner(graph *workspace.Graph, checker *Checker, exec execx.Executor, bus *events.Bus, cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	return &Runner{graph: graph, checker: checker, exec: exec, bus: bus, cfg: cfg}
}

// Run executes one task: conditions first, then the task's commands in
// every selected package. Packages start in topological order and run
// in parallel up to the concurrency limit; commands within a package
// run sequentially.
func (r *Runner) Run(ctx context.Context, task TaskDefinition, ectx *Context) (*TaskResult, error) {
	result := &TaskResult{
		TaskName:  task.Name,
		Status:    StatusSuccess,
		StartedAt: time.Now(),
	}
	finish := func() {
		result.EndedAt = time.Now()
		result.Duration = result.EndedAt.Sub(result.StartedAt)
	}

	pass, err := r.checkConditions(ctx, task.Conditions, ectx)
	if err != nil {
		finish()
		return nil, fmt.Errorf("task %s: %w", task.Name, err)
	}
	if !pass {
		result.Status = StatusSkipped
		result.Reason = "conditions-false"
		finish()
		r.emit(task.Name, "", "skipped", result.Reason, 0)
		return result, nil
	}

	selected := r.selectPackages(task.Affects, ectx)
	order, err := r.graph.TopologicalOrder(selected)
	if err != nil {
		finish()
		return nil, fmt.Errorf("task %s: %w", task.Name, err)
	}
	result.AffectedPackages = order

	r.emit(task.Name, "", "started", "", 0)

	var mu sync.Mutex
	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	var wg sync.WaitGroup
	cancelled := false

	for _, name := range order {
		if err := sem.Acquire(ctx, 1); err != nil {
			cancelled = true
			break
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer sem.Release(1)
			outputs, status, reason := r.runPackage(ctx, task, name)

			mu.Lock()
			defer mu.Unlock()
			result.Outputs = append(result.Outputs, outputs...)
			result.Stats.PackagesProcessed++
			for _, out := range outputs {
				result.Stats.CommandsExecuted++
				result.Stats.StdoutBytes += int64(len(out.Stdout))
				result.Stats.StderrBytes += int64(len(out.Stderr))
				if out.ExitCode == 0 && !out.TimedOut {
					result.Stats.CommandsSucceeded++
				} else {
					result.Stats.CommandsFailed++
				}
			}
			if status != StatusSuccess {
				result.Errors = append(result.Errors,
					fmt.Sprintf("package %s: %s", name, reason))
				mergeStatus(result, status, reason)
			}
		}(name)
	}
	wg.Wait()

	if cancelled {
		result.Status = StatusCancelled
		result.Reason = "cancelled"
	}
	sort.Strings(result.Errors)
	finish()

	r.emit(task.Name, "", statusEventName(result.Status), result.Reason,
		result.Duration.Milliseconds())
	return result, nil
}

// checkConditions routes to the sync or async checker.
func (r *Runner) checkConditions(ctx context.Context, conditions []Condition, ectx *Context) (bool, error) {
	if HasAsync(conditions) {
		return r.checker.CheckAsync(ctx, conditions, ectx)
	}
	return r.checker.CheckSync(conditions, ectx)
}

// selectPackages resolves the affects selector against the analysis.
func (r *Runner) selectPackages(sel Selector, ectx *Context) []string {
	var names []string
	switch sel {
	case AffectsAll:
		return r.graph.Names()
	case AffectsDependents:
		for name := range ectx.Affected.DirectlyAffected {
			names = append(names, name)
		}
		for name := range ectx.Affected.DependentsAffected {
			names = append(names, name)
		}
	default: // AffectsSelf
		for name := range ectx.Affected.DirectlyAffected {
			names = append(names, name)
		}
	}
	kept := names[:0]
	for _, name := range names {
		if r.graph.Has(name) {
			kept = append(kept, name)
		}
	}
	sort.Strings(kept)
	return kept
}

// runPackage runs the task's commands sequentially in one package.
// The first failing command aborts the rest unless continue_on_error.
func (r *Runner) runPackage(ctx context.Context, task TaskDefinition, name string) ([]CommandOutput, Status, string) {
	p := r.graph.Get(name)
	status := StatusSuccess
	reason := ""
	var outputs []CommandOutput

	for _, spec := range task.Commands {
		dir := spec.Dir
		if dir == "" {
			dir = p.AbsPath
		}
		res, err := r.exec.Execute(ctx, execx.Command{
			Program:        spec.Program,
			Args:           spec.Args,
			Dir:            dir,
			Env:            spec.Env,
			Timeout:        r.cfg.CommandTimeout,
			GracePeriod:    r.cfg.GracePeriod,
			MaxOutputBytes: r.cfg.MaxOutputBytes,
		})
		// A command that failed without running (spawn or wait error)
		// reports no exit code of its own; use -1 like timeouts so stats
		// never count it as a success.
		exitCode := res.ExitCode
		if err != nil && exitCode == 0 {
			exitCode = -1
		}
		outputs = append(outputs, CommandOutput{
			Package:  name,
			Command:  renderCommand(spec),
			Dir:      dir,
			ExitCode: exitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Duration: res.Duration,
			TimedOut: res.TimedOut,
		})

		var cmdStatus Status
		var cmdReason string
		switch {
		case errors.Is(err, execx.ErrTimeout):
			cmdStatus, cmdReason = StatusTimedOut, fmt.Sprintf("timeout: %s", renderCommand(spec))
		case ctx.Err() != nil:
			return outputs, StatusCancelled, "cancelled"
		case errors.Is(err, execx.ErrSpawn):
			cmdStatus, cmdReason = StatusFailed, "spawn-error"
		case err != nil:
			cmdStatus, cmdReason = StatusFailed, err.Error()
		case res.ExitCode != 0:
			cmdStatus, cmdReason = StatusFailed, fmt.Sprintf("exit(%d)", res.ExitCode)
		default:
			continue
		}
		// Keep the first failure's reason; later commands only run with
		// continue_on_error.
		if status == StatusSuccess {
			status, reason = cmdStatus, cmdReason
		}
		if !task.ContinueOnError {
			break
		}
	}
	return outputs, status, reason
}

// mergeStatus folds a package status into the task status.
// Cancelled > TimedOut > Failed > Success.
func mergeStatus(result *TaskResult, status Status, reason string) {
	rank := func(s Status) int {
		switch s {
		case StatusCancelled:
			return 3
		case StatusTimedOut:
			return 2
		case StatusFailed:
			return 1
		}
		return 0
	}
	if rank(status) > rank(result.Status) {
		result.Status = status
		result.Reason = reason
	}
}

func statusEventName(s Status) string {
	switch s {
	case StatusSuccess:
		return "succeeded"
	case StatusTimedOut:
		return "timed_out"
	case StatusCancelled:
		return "cancelled"
	default:
		return string(s)
	}
}

// emit publishes a task lifecycle event when a bus is attached.
func (r *Runner) emit(taskName, pkg, status, reason string, durationMs int64) {
	if r.bus == nil {
		return
	}
	event, err := events.New(events.VariantTask, "tasks", events.PriorityNormal).
		WithData(events.TaskData{
			TaskName:   taskName,
			Package:    pkg,
			Status:     status,
			Reason:     reason,
			DurationMs: durationMs,
		})
	if err != nil {
		return
	}
	r.bus.Emit(event)
}

// renderCommand formats a command spec for logs and outputs.
func renderCommand(spec CommandSpec) string {
	if len(spec.Args) == 0 {
		return spec.Program
	}
	return spec.Program + " " + strings.Join(spec.Args, " ")
}
