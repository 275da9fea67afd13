// Package execx implements the subprocess capability: spawn a command,
// capture bounded output, and enforce timeouts with a SIGTERM then
// SIGKILL escalation.
package execx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

// Default limits for command execution.
const (
	// DefaultTimeout bounds a single command's wall-clock time.
	DefaultTimeout = 10 * time.Minute
	// DefaultGracePeriod is how long a process gets between SIGTERM
	// and SIGKILL.
	DefaultGracePeriod = 5 * time.Second
	// DefaultMaxOutputBytes caps captured stdout and stderr, each.
	DefaultMaxOutputBytes = 1 << 20
)

// TruncationMarker is appended to captured output that hit the byte cap.
const TruncationMarker = "\n...[output truncated]"

// Command describes one subprocess invocation.
type Command struct {
	// Program is the executable to run.
	Program string
	// Args are the program arguments.
	Args []string
	// Dir is the working directory; empty means the caller's.
	Dir string
	// Env is appended to the parent environment.
	Env map[string]string
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
	// GracePeriod overrides DefaultGracePeriod when positive.
	GracePeriod time.Duration
	// MaxOutputBytes overrides DefaultMaxOutputBytes when positive.
	MaxOutputBytes int
}

// Result captures a finished subprocess.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	// TimedOut is true when the command was killed by its timeout.
	TimedOut bool `json:"timed_out"`
}

// Executor is the subprocess capability.
type Executor interface {
	// Execute runs the command and returns its result. A non-zero exit
	// code is not an error; spawn failures and timeouts are.
	Execute(ctx context.Context, cmd Command) (Result, error)
}

// ErrTimeout indicates a command exceeded its timeout.
var ErrTimeout = errors.New("command timed out")

// ErrSpawn indicates a command could not be started.
var ErrSpawn = errors.New("command spawn failed")

// Local runs commands on the local machine.
type Local struct{}

// NewLocal creates the production executor.
func NewLocal() *Local {
	return &Local{}
}

var _ Executor = (*Local)(nil)

// Execute runs cmd with bounded output capture. On timeout the process
// receives SIGTERM, then SIGKILL after the grace period, and the result
// carries TimedOut=true along with ErrTimeout.
func (l *Local) Execute(ctx context.Context, spec Command) (Result, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	grace := spec.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	maxBytes := spec.MaxOutputBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Soft-kill first so the process can clean up, hard-kill after the
	// grace period via WaitDelay.
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	stdout := newBoundedBuffer(maxBytes)
	stderr := newBoundedBuffer(maxBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrSpawn, spec.Program, err)
	}
	waitErr := cmd.Wait()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, spec.Program)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("wait for %s: %w", spec.Program, waitErr)
	}
	return result, nil
}

// ShellCommand wraps a shell one-liner in the platform shell: sh -c on
// Unix, cmd /C on Windows.
func ShellCommand(script, dir string) Command {
	if runtime.GOOS == "windows" {
		return Command{Program: "cmd", Args: []string{"/C", script}, Dir: dir}
	}
	return Command{Program: "sh", Args: []string{"-c", script}, Dir: dir}
}
