package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/monorail-dev/monorail/internal/changes"
	"github.com/monorail-dev/monorail/internal/config"
	"github.com/monorail-dev/monorail/internal/gitx"
	"github.com/monorail-dev/monorail/internal/workspace"
)

var (
	changesSince string
	changesJSON  bool
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Analyze changes since a git revision",
	Long: `Analyze every change between a base revision and HEAD: which files
changed, which workspace packages own them, which dependents are
transitively affected, and the suggested version bump per package.

Examples:
  monorail changes                       # Since origin/main
  monorail changes --since v1.4.0        # Since a tag
  monorail changes --since HEAD~5 --json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		graph, _ := openGraph(ctx, cfg)
		analysis, _ := analyzeSince(ctx, cfg, graph, changesSince)

		if changesJSON {
			data, err := json.MarshalIndent(analysis, "", "  ")
			if err != nil {
				fail("%v", err)
			}
			fmt.Println(string(data))
			return
		}

		bold := color.New(color.Bold)
		bold.Printf("Changes since %s\n\n", changesSince)
		if len(analysis.PackageChanges) == 0 {
			fmt.Println("No workspace packages changed.")
			return
		}

		for _, pc := range analysis.PackageChanges {
			bump := string(pc.SuggestedBump)
			switch pc.SuggestedBump {
			case changes.SignificanceMajor:
				bump = color.RedString(bump)
			case changes.SignificanceMinor:
				bump = color.YellowString(bump)
			}
			fmt.Printf("  %-30s %d files, suggested bump: %s\n",
				pc.Package, len(pc.ChangedPaths), bump)
			for _, h := range pc.Hints {
				fmt.Printf("    %s %s %s", h.Kind, h.Section, h.Name)
				if h.From != "" || h.To != "" {
					fmt.Printf(" (%s -> %s)", h.From, h.To)
				}
				fmt.Println()
			}
		}

		dependents := sortedSet(analysis.Affected.DependentsAffected)
		if len(dependents) > 0 {
			fmt.Printf("\nAffected dependents: %s\n", strings.Join(dependents, ", "))
		}
		fmt.Printf("Total affected: %d of %d packages\n",
			analysis.Affected.TotalAffectedCount, len(graph.Packages))
	},
}

// analyzeSince runs change analysis over the configured repository.
func analyzeSince(ctx context.Context, cfg config.Config, graph *workspace.Graph, since string) (*changes.Analysis, *gitx.Repo) {
	repo, err := gitx.Open(ctx, cfg.Root)
	if err != nil {
		fail("open repository at %s: %v", cfg.Root, err)
	}
	analysis, err := changes.NewAnalyzer(repo, graph).DetectChangesSince(ctx, since)
	if err != nil {
		fail("%v", err)
	}
	return analysis, repo
}

func sortedSet(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	changesCmd.Flags().StringVar(&changesSince, "since", "origin/main", "base revision to diff against")
	changesCmd.Flags().BoolVar(&changesJSON, "json", false, "print the analysis as JSON")
	rootCmd.AddCommand(changesCmd)
}
