// Package config loads the platform configuration from monorail.yaml
// and MONORAIL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/monorail-dev/monorail/internal/bump"
	"github.com/monorail-dev/monorail/internal/tasks"
)

// DefaultFileName is the configuration file looked up at the workspace
// root.
const DefaultFileName = "monorail.yaml"

// envPrefix namespaces environment overrides: MONORAIL_TASKS_CONCURRENCY
// overrides tasks.concurrency, and so on.
const envPrefix = "MONORAIL"

// DiscoveryConfig bounds workspace discovery.
type DiscoveryConfig struct {
	// IOConcurrency is the parallel manifest-parse limit.
	// Default: 0 (number of CPU cores).
	IOConcurrency int `mapstructure:"io_concurrency"`

	// Timeout is the overall discovery deadline, after which partial
	// results are returned.
	// Default: 2m
	Timeout time.Duration `mapstructure:"timeout"`

	// CacheTTL is the freshness window of the discovery cache.
	// Default: 5m
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// EventsConfig bounds the event bus and its journal.
type EventsConfig struct {
	// QueueCapacity is the bounded bus queue length.
	// Default: 1024, minimum 16.
	QueueCapacity int `mapstructure:"queue_capacity"`

	// JournalPath is the sqlite event journal location; empty disables
	// journaling.
	JournalPath string `mapstructure:"journal_path"`

	// JournalRetention is how long journaled events are kept.
	// Default: 720h (30 days).
	JournalRetention time.Duration `mapstructure:"journal_retention"`
}

// WatchConfig bounds the filesystem watcher.
type WatchConfig struct {
	// Debounce is the quiet window before emitting a batch of
	// filesystem events.
	// Default: 250ms
	Debounce time.Duration `mapstructure:"debounce"`
}

// Config is the full platform configuration.
type Config struct {
	// Root is the workspace root; default is the working directory.
	Root string `mapstructure:"root"`

	Discovery DiscoveryConfig    `mapstructure:"discovery"`
	Bump      bump.Config        `mapstructure:"bump"`
	Tasks     tasks.Config       `mapstructure:"tasks"`
	Branches  tasks.BranchConfig `mapstructure:"branches"`
	Events    EventsConfig       `mapstructure:"events"`
	Watch     WatchConfig        `mapstructure:"watch"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Root: ".",
		Discovery: DiscoveryConfig{
			Timeout:  2 * time.Minute,
			CacheTTL: 5 * time.Minute,
		},
		Bump:     bump.DefaultConfig(),
		Tasks:    tasks.DefaultConfig(),
		Branches: tasks.DefaultBranchConfig(),
		Events: EventsConfig{
			QueueCapacity:    1024,
			JournalRetention: 30 * 24 * time.Hour,
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
	}
}

// Load reads the configuration file at path (empty means
// monorail.yaml in the working directory, and a missing file is fine)
// and applies MONORAIL_* environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	cfg := Default()
	setDefaults(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		// Only a missing file in default-lookup mode is tolerated.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setDefaults registers every key with viper so environment overrides
// resolve even when the key is absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("root", cfg.Root)
	v.SetDefault("discovery.io_concurrency", cfg.Discovery.IOConcurrency)
	v.SetDefault("discovery.timeout", cfg.Discovery.Timeout)
	v.SetDefault("discovery.cache_ttl", cfg.Discovery.CacheTTL)
	v.SetDefault("bump.mode", cfg.Bump.Mode)
	v.SetDefault("bump.sync_on_major_bump", cfg.Bump.SyncOnMajorBump)
	v.SetDefault("bump.independent_packages", cfg.Bump.IndependentPackages)
	v.SetDefault("tasks.concurrency", cfg.Tasks.Concurrency)
	v.SetDefault("tasks.command_timeout", cfg.Tasks.CommandTimeout)
	v.SetDefault("tasks.grace_period", cfg.Tasks.GracePeriod)
	v.SetDefault("tasks.max_output_bytes", cfg.Tasks.MaxOutputBytes)
	v.SetDefault("branches.main", cfg.Branches.Main)
	v.SetDefault("branches.feature", cfg.Branches.Feature)
	v.SetDefault("branches.release", cfg.Branches.Release)
	v.SetDefault("branches.hotfix", cfg.Branches.Hotfix)
	v.SetDefault("events.queue_capacity", cfg.Events.QueueCapacity)
	v.SetDefault("events.journal_path", cfg.Events.JournalPath)
	v.SetDefault("events.journal_retention", cfg.Events.JournalRetention)
	v.SetDefault("watch.debounce", cfg.Watch.Debounce)
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	if c.Discovery.IOConcurrency < 0 {
		return fmt.Errorf("discovery.io_concurrency cannot be negative (got %d)", c.Discovery.IOConcurrency)
	}
	if c.Tasks.Concurrency < 0 {
		return fmt.Errorf("tasks.concurrency cannot be negative (got %d)", c.Tasks.Concurrency)
	}
	if c.Events.QueueCapacity < 16 {
		return fmt.Errorf("events.queue_capacity must be at least 16 (got %d)", c.Events.QueueCapacity)
	}
	switch c.Bump.Mode {
	case bump.ModeIndividual, bump.ModeUnified, bump.ModeMixed:
	default:
		return fmt.Errorf("bump.mode must be individual, unified, or mixed (got %q)", c.Bump.Mode)
	}
	for _, g := range c.Bump.Groups {
		if g.Name == "" {
			return fmt.Errorf("bump.groups entries need a name")
		}
		if len(g.Patterns) == 0 {
			return fmt.Errorf("bump group %q has no patterns", g.Name)
		}
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce cannot be negative (got %s)", c.Watch.Debounce)
	}
	return nil
}
