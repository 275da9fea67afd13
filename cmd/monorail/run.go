package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/monorail-dev/monorail/internal/events"
	"github.com/monorail-dev/monorail/internal/execx"
	"github.com/monorail-dev/monorail/internal/tasks"
)

var (
	runSince           string
	runScope           string
	runCommands        []string
	runOnlyAffected    bool
	runBranch          string
	runContinueOnError bool
	runVerbose         bool
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task across affected packages",
	Long: `Run a task across workspace packages in dependency order, bounded by
the configured concurrency. By default the task runs "npm run <task>"
in each selected package; --cmd overrides the command list.

Packages are selected by change analysis against --since and the
--scope selector (self, dependents, all). Conditions from flags gate
the whole run: --only-affected skips the task when no package changed,
--branch skips it unless the current branch matches the glob.

Examples:
  monorail run build                                # npm run build, all packages
  monorail run test --scope dependents --since main
  monorail run lint --only-affected
  monorail run deploy --branch "release/*" --cmd "./scripts/deploy.sh"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		taskName := args[0]
		cfg := loadConfig()
		graph, _ := openGraph(ctx, cfg)
		analysis, repo := analyzeSince(ctx, cfg, graph, runSince)

		branch, err := repo.CurrentBranch(ctx)
		if err != nil {
			fail("current branch: %v", err)
		}

		ectx := &tasks.Context{
			Affected:      analysis.Affected,
			Hints:         analysis.RootHints,
			CurrentBranch: branch,
			Environment:   environMap(),
			WorkingDir:    cfg.Root,
		}
		for _, f := range analysis.ChangedFiles {
			ectx.ChangedFiles = append(ectx.ChangedFiles, f.Path)
		}
		for _, pc := range analysis.PackageChanges {
			ectx.Hints = append(ectx.Hints, pc.Hints...)
		}

		task := tasks.TaskDefinition{
			Name:            taskName,
			Commands:        taskCommands(taskName),
			Affects:         tasks.Selector(runScope),
			ContinueOnError: runContinueOnError,
		}
		if runOnlyAffected {
			task.Conditions = append(task.Conditions, tasks.PackagesChanged{})
		}
		if runBranch != "" {
			task.Conditions = append(task.Conditions,
				tasks.OnBranch{Kind: tasks.BranchMatches, Value: runBranch})
		}

		exec := execx.NewLocal()
		checker := tasks.NewChecker(cfg.Branches, exec, cfg.Root)
		bus := events.NewBus(cfg.Events.QueueCapacity)
		runner := tasks.NewRunner(graph, checker, exec, bus, cfg.Tasks)

		result, err := runner.Run(ctx, task, ectx)
		if err != nil {
			fail("%v", err)
		}
		flushJournal(ctx, cfg, bus)
		printResult(result)
		if result.Status == tasks.StatusFailed || result.Status == tasks.StatusTimedOut {
			os.Exit(1)
		}
	},
}

// taskCommands builds the command list: explicit --cmd values, or the
// package.json script named after the task.
func taskCommands(taskName string) []tasks.CommandSpec {
	if len(runCommands) == 0 {
		return []tasks.CommandSpec{{Program: "npm", Args: []string{"run", taskName}}}
	}
	specs := make([]tasks.CommandSpec, 0, len(runCommands))
	for _, c := range runCommands {
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		specs = append(specs, tasks.CommandSpec{Program: fields[0], Args: fields[1:]})
	}
	return specs
}

// environMap snapshots the process environment for condition checks.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

func printResult(result *tasks.TaskResult) {
	switch result.Status {
	case tasks.StatusSuccess:
		color.Green("Task %s succeeded in %s", result.TaskName, result.Duration.Round(time.Millisecond))
	case tasks.StatusSkipped:
		color.Yellow("Task %s skipped (%s)", result.TaskName, result.Reason)
		return
	default:
		color.Red("Task %s %s (%s)", result.TaskName, result.Status, result.Reason)
	}

	fmt.Printf("  %d packages, %d commands (%d failed)\n",
		result.Stats.PackagesProcessed,
		result.Stats.CommandsExecuted,
		result.Stats.CommandsFailed)

	for _, out := range result.Outputs {
		if out.ExitCode == 0 && !runVerbose {
			continue
		}
		fmt.Printf("\n--- %s: %s (exit %d)\n", out.Package, out.Command, out.ExitCode)
		if out.Stdout != "" {
			fmt.Print(out.Stdout)
		}
		if out.Stderr != "" {
			fmt.Fprint(os.Stderr, out.Stderr)
		}
	}
	for _, e := range result.Errors {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %s\n", e)
	}
}

func init() {
	runCmd.Flags().StringVar(&runSince, "since", "origin/main", "base revision for change analysis")
	runCmd.Flags().StringVar(&runScope, "scope", string(tasks.AffectsAll), "package selector: self, dependents, all")
	runCmd.Flags().StringArrayVar(&runCommands, "cmd", nil, "command to run per package (repeatable; default npm run <task>)")
	runCmd.Flags().BoolVar(&runOnlyAffected, "only-affected", false, "skip the task when no package changed")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "run only when the current branch matches this glob")
	runCmd.Flags().BoolVar(&runContinueOnError, "continue-on-error", false, "keep running a package's commands after a failure")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "print output of successful commands too")
	rootCmd.AddCommand(runCmd)
}
