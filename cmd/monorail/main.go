// monorail is the monorepo engineering platform CLI: workspace
// discovery, change analysis, cascade version bumps, conditional task
// runs, changelogs, and a filesystem watcher.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/monorail-dev/monorail/internal/config"
	"github.com/monorail-dev/monorail/internal/fsops"
	"github.com/monorail-dev/monorail/internal/workspace"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "monorail",
	Short: "Monorepo engineering platform",
	Long: `monorail discovers workspace packages, analyzes changes between git
revisions, plans and applies cascading version bumps, runs conditional
tasks across affected packages, and generates changelogs.

Configuration is read from monorail.yaml in the working directory (or
--config) with MONORAIL_* environment overrides.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default monorail.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fail prints an error and exits, the shared failure path of every
// subcommand.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig reads the configuration honoring the --config flag.
func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fail("%v", err)
	}
	return cfg
}

// openGraph discovers the workspace for the configured root.
func openGraph(ctx context.Context, cfg config.Config) (*workspace.Graph, *workspace.Discoverer) {
	d := newDiscoverer(cfg)
	graph, err := d.Discover(ctx, cfg.Root)
	if err != nil {
		fail("discover workspace at %s: %v", cfg.Root, err)
	}
	return graph, d
}

func newDiscoverer(cfg config.Config) *workspace.Discoverer {
	return workspace.NewDiscoverer(fsops.NewOS(), workspace.Config{
		IOConcurrency: cfg.Discovery.IOConcurrency,
		Timeout:       cfg.Discovery.Timeout,
		CacheTTL:      cfg.Discovery.CacheTTL,
	})
}
