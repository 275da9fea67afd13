// Package tasks evaluates task conditions against an execution context
// and runs task commands across affected packages.
package tasks

import (
	"time"

	"github.com/monorail-dev/monorail/internal/changes"
)

// Selector names the packages a task runs over, relative to the change
// analysis.
type Selector string

const (
	// AffectsSelf runs the task over directly affected packages only.
	AffectsSelf Selector = "self"
	// AffectsDependents runs over directly affected packages and their
	// transitive dependents.
	AffectsDependents Selector = "dependents"
	// AffectsAll runs over every workspace package.
	AffectsAll Selector = "all"
)

// CommandSpec is one command of a task definition.
type CommandSpec struct {
	// Program is the executable to run.
	Program string `json:"program"`
	// Args are the program arguments.
	Args []string `json:"args,omitempty"`
	// Dir overrides the package directory as working directory.
	Dir string `json:"dir,omitempty"`
	// Env is appended to the process environment.
	Env map[string]string `json:"env,omitempty"`
}

// TaskDefinition is a named unit of work with gating conditions.
type TaskDefinition struct {
	// Name identifies the task.
	Name string `json:"name"`
	// Commands run sequentially in each selected package.
	Commands []CommandSpec `json:"commands"`
	// Conditions gate execution; an empty list always passes. The list
	// is an implicit AND.
	Conditions []Condition `json:"-"`
	// Affects selects the packages the task runs over.
	Affects Selector `json:"affects"`
	// ContinueOnError keeps running a package's remaining commands after
	// a failure.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

// Status is the terminal state of a task execution.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusTimedOut  Status = "timed-out"
	StatusCancelled Status = "cancelled"
)

// Context is the execution context conditions are evaluated against.
// It is built from a change analysis plus ambient facts; conditions
// never read process-wide state directly.
type Context struct {
	// ChangedFiles are workspace-relative changed paths.
	ChangedFiles []string
	// Affected is the computed impact from change analysis.
	Affected changes.Affected
	// Hints are dependency-map changes from the analysis.
	Hints []changes.DependencyHint
	// CurrentBranch is the checked-out branch, when known.
	CurrentBranch string
	// Environment is the variable map conditions read. Populated from
	// the process environment at the outermost entry point.
	Environment map[string]string
	// WorkingDir is where custom scripts run; empty means the workspace
	// root.
	WorkingDir string
}

// Getenv reads a variable from the context environment.
func (c *Context) Getenv(name string) (string, bool) {
	v, ok := c.Environment[name]
	return v, ok
}

// CommandOutput captures one finished command of a task run.
type CommandOutput struct {
	// Package is the workspace package the command ran in.
	Package string `json:"package"`
	// Command is the rendered command line.
	Command string `json:"command"`
	// Dir is the working directory used.
	Dir      string        `json:"dir"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
	// TimedOut is true when the command hit its timeout.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Stats aggregates counters across every command of a task run.
type Stats struct {
	CommandsExecuted  int   `json:"commands_executed"`
	CommandsSucceeded int   `json:"commands_succeeded"`
	CommandsFailed    int   `json:"commands_failed"`
	PackagesProcessed int   `json:"packages_processed"`
	StdoutBytes       int64 `json:"stdout_bytes"`
	StderrBytes       int64 `json:"stderr_bytes"`
}

// TaskResult is the outcome of one task execution.
type TaskResult struct {
	TaskName string `json:"task_name"`
	Status   Status `json:"status"`
	// Reason elaborates failed, skipped, and timed-out statuses, e.g.
	// "conditions-false", "spawn-error", "exit(2)".
	Reason    string        `json:"reason,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"duration"`
	// Outputs are the per-command captures, in execution order per
	// package.
	Outputs []CommandOutput `json:"outputs,omitempty"`
	Stats   Stats           `json:"stats"`
	// AffectedPackages are the selected packages in execution order.
	AffectedPackages []string `json:"affected_packages,omitempty"`
	// Errors aggregates per-package failures.
	Errors []string `json:"errors,omitempty"`
}
