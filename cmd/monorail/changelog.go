package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/monorail-dev/monorail/internal/changelog"
	"github.com/monorail-dev/monorail/internal/fsops"
	"github.com/monorail-dev/monorail/internal/gitx"
)

var (
	changelogSince   string
	changelogVersion string
	changelogFormat  string
	changelogGroupBy string
	changelogWrite   bool
)

var changelogCmd = &cobra.Command{
	Use:   "changelog <package>",
	Short: "Generate a changelog for a package",
	Long: `Parse the conventional commits that touched a package since a base
revision and render them as release notes. With --write the rendered
section is merged into the package's CHANGELOG.md, newest release
first, preserving any hand-written preamble.

Examples:
  monorail changelog auth --since v1.4.0 --version 1.5.0
  monorail changelog auth --since v1.4.0 --version 1.5.0 --write
  monorail changelog auth --since HEAD~20 --format json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		pkgName := args[0]
		cfg := loadConfig()
		graph, _ := openGraph(ctx, cfg)

		p := graph.Get(pkgName)
		if p == nil {
			fail("unknown package %q", pkgName)
		}

		repo, err := gitx.Open(ctx, cfg.Root)
		if err != nil {
			fail("open repository at %s: %v", cfg.Root, err)
		}
		pkgPath := p.RelPath
		if pkgPath == "" {
			pkgPath = "."
		}
		raw, err := repo.CommitsTouching(ctx, changelogSince, pkgPath)
		if err != nil {
			fail("list commits for %s: %v", pkgName, err)
		}
		if len(raw) == 0 {
			fmt.Printf("No commits touched %s since %s.\n", pkgName, changelogSince)
			return
		}
		commits := changelog.ParseAll(raw)

		version := changelogVersion
		if version == "" {
			version = p.Version()
		}
		opts := changelog.Options{
			Package:         pkgName,
			Version:         version,
			Date:            time.Now().Format("2006-01-02"),
			Format:          changelog.Format(changelogFormat),
			GroupBy:         changelog.GroupBy(changelogGroupBy),
			BreakingSection: true,
		}

		if changelogWrite {
			path := filepath.Join(p.AbsPath, "CHANGELOG.md")
			mgr := changelog.NewManager(fsops.NewOS())
			if err := mgr.Update(ctx, path, commits, opts); err != nil {
				fail("%v", err)
			}
			color.Green("Updated %s (%d commits)", path, len(commits))
			return
		}

		out, err := changelog.Render(commits, opts)
		if err != nil {
			fail("%v", err)
		}
		fmt.Print(out)
	},
}

func init() {
	changelogCmd.Flags().StringVar(&changelogSince, "since", "", "base revision (empty means all history)")
	changelogCmd.Flags().StringVar(&changelogVersion, "version", "", "release version (default: current manifest version)")
	changelogCmd.Flags().StringVar(&changelogFormat, "format", "markdown", "output format: markdown, text, json")
	changelogCmd.Flags().StringVar(&changelogGroupBy, "group-by", "type", "grouping: type, scope, none")
	changelogCmd.Flags().BoolVar(&changelogWrite, "write", false, "merge into the package CHANGELOG.md")
	rootCmd.AddCommand(changelogCmd)
}
