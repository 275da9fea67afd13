package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/monorail-dev/monorail/internal/bump"
	"github.com/monorail-dev/monorail/internal/fsops"
)

var (
	bumpApply       bool
	bumpDescription string
)

var bumpCmd = &cobra.Command{
	Use:   "bump <package>=<strategy> [<package>=<strategy>...]",
	Short: "Plan or apply cascading version bumps",
	Long: `Plan version bumps for the named packages and cascade them to
workspace dependents per the configured mode (individual, unified, or
mixed). Without --apply the plan is printed and nothing is written.

Strategies: major, minor, patch, snapshot:<id>, cascade.

Examples:
  monorail bump auth=major                      # Preview a breaking bump
  monorail bump auth=major ui=patch --apply     # Write manifests
  monorail bump core=snapshot:alpha             # Prerelease snapshot`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		d := newDiscoverer(cfg)
		graph, err := d.Discover(ctx, cfg.Root)
		if err != nil {
			fail("discover workspace at %s: %v", cfg.Root, err)
		}

		targets, err := parseTargets(args)
		if err != nil {
			fail("%v", err)
		}

		mode := bump.ModePreview
		if bumpApply {
			mode = bump.ModeApply
		}
		cs := bump.ChangeSet{Targets: targets, Description: bumpDescription, Mode: mode}

		bumper := bump.New(graph, fsops.NewOS(), d.Cache(), cfg.Bump)
		report, err := bumper.Execute(ctx, cs)
		if err != nil {
			fail("%v", err)
		}
		printReport(report, bumpApply)
		if len(report.Errors) > 0 {
			os.Exit(1)
		}
	},
}

// parseTargets parses name=strategy arguments into a target map.
func parseTargets(args []string) (map[string]bump.Strategy, error) {
	targets := make(map[string]bump.Strategy, len(args))
	for _, arg := range args {
		name, spec, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("malformed target %q, want <package>=<strategy>", arg)
		}
		var strat bump.Strategy
		if id, isSnap := strings.CutPrefix(spec, "snapshot:"); isSnap {
			strat = bump.Snapshot(id)
		} else {
			strat = bump.Strategy{Kind: bump.StrategyKind(spec)}
		}
		targets[name] = strat
	}
	return targets, nil
}

func printReport(report *bump.Report, applied bool) {
	bold := color.New(color.Bold)
	if applied {
		bold.Println("Applied version bumps")
	} else {
		bold.Println("Planned version bumps (preview)")
	}

	fmt.Println("\nPrimary:")
	for _, name := range sortedKeys(report.PrimaryBumps) {
		fmt.Printf("  %-30s -> %s\n", name, report.PrimaryBumps[name])
	}
	if len(report.CascadeBumps) > 0 {
		fmt.Println("Cascade:")
		for _, name := range sortedKeys(report.CascadeBumps) {
			fmt.Printf("  %-30s -> %s\n", name, report.CascadeBumps[name])
		}
	}
	if len(report.ReferenceUpdates) > 0 {
		fmt.Printf("\n%d dependency references updated:\n", len(report.ReferenceUpdates))
		for _, ref := range report.ReferenceUpdates {
			fmt.Printf("  %s: %s %s -> %s\n", ref.Package, ref.Dependency, ref.FromRef, ref.ToRef)
		}
	}
	if len(report.AffectedPackages) > 0 {
		fmt.Printf("\nAffected without a bump: %s\n", strings.Join(report.AffectedPackages, ", "))
	}

	warn := color.New(color.FgYellow)
	for _, w := range report.Warnings {
		warn.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	errc := color.New(color.FgRed)
	for _, e := range report.Errors {
		errc.Fprintf(os.Stderr, "error: %s\n", e)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	bumpCmd.Flags().BoolVar(&bumpApply, "apply", false, "write manifests instead of previewing")
	bumpCmd.Flags().StringVar(&bumpDescription, "description", "", "change-set description")
	rootCmd.AddCommand(bumpCmd)
}
