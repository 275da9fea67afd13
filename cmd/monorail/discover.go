package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var discoverJSON bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover workspace packages and their dependency graph",
	Long: `Discover the monorepo convention at the workspace root (pnpm, yarn,
npm, lerna, nx, turborepo, or a single package), parse every package
manifest, and print the dependency graph.

Examples:
  monorail discover           # Human-readable package list
  monorail discover --json    # Machine-readable graph`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg := loadConfig()
		graph, _ := openGraph(ctx, cfg)

		if discoverJSON {
			out := struct {
				Kind     string   `json:"kind"`
				Root     string   `json:"root"`
				Packages []pkgRow `json:"packages"`
				Warnings []string `json:"warnings,omitempty"`
			}{Kind: string(graph.Kind), Root: graph.Root, Warnings: graph.Warnings}
			for _, p := range graph.Packages {
				row := pkgRow{Name: p.Name(), Version: p.Version(), Path: p.RelPath}
				for dep := range p.Manifest.Dependencies {
					if graph.Get(dep) != nil {
						row.WorkspaceDeps = append(row.WorkspaceDeps, dep)
					}
				}
				out.Packages = append(out.Packages, row)
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				fail("%v", err)
			}
			fmt.Println(string(data))
			return
		}

		bold := color.New(color.Bold)
		bold.Printf("%s workspace at %s\n", graph.Kind, graph.Root)
		fmt.Printf("%d packages\n\n", len(graph.Packages))
		for _, p := range graph.Packages {
			fmt.Printf("  %-30s %-12s %s\n", p.Name(), p.Version(), p.RelPath)
		}
		if len(graph.Warnings) > 0 {
			fmt.Println()
			warn := color.New(color.FgYellow)
			for _, w := range graph.Warnings {
				warn.Fprintf(os.Stderr, "warning: %s\n", w)
			}
		}
	},
}

type pkgRow struct {
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Path          string   `json:"path"`
	WorkspaceDeps []string `json:"workspace_deps,omitempty"`
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "print the graph as JSON")
	rootCmd.AddCommand(discoverCmd)
}
