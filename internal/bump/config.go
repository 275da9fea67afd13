package bump

import (
	"github.com/bmatcuk/doublestar/v4"
)

// GroupMode selects the cascade strategy family.
type GroupMode string

const (
	// ModeIndividual cascades only direct dependents, as patches.
	ModeIndividual GroupMode = "individual"
	// ModeUnified moves every non-independent package together.
	ModeUnified GroupMode = "unified"
	// ModeMixed applies unified inside named groups and individual
	// outside them.
	ModeMixed GroupMode = "mixed"
)

// Group is one named package group for mixed mode. Members are matched
// by glob patterns against package names.
type Group struct {
	Name     string   `json:"name" mapstructure:"name"`
	Patterns []string `json:"patterns" mapstructure:"patterns"`
}

// Config controls cascade behavior.
type Config struct {
	// Mode is the cascade strategy family.
	Mode GroupMode `json:"mode" mapstructure:"mode"`
	// SyncOnMajorBump propagates a primary major bump to direct
	// dependents under individual mode.
	SyncOnMajorBump bool `json:"sync_on_major_bump" mapstructure:"sync_on_major_bump"`
	// IndependentPackages never receive cascade bumps.
	IndependentPackages []string `json:"independent_packages" mapstructure:"independent_packages"`
	// Groups partitions the workspace for mixed mode.
	Groups []Group `json:"groups" mapstructure:"groups"`
}

// DefaultConfig returns the stock cascade configuration.
func DefaultConfig() Config {
	return Config{
		Mode:            ModeIndividual,
		SyncOnMajorBump: true,
	}
}

// independent reports whether name is excluded from cascades.
func (c Config) independent(name string) bool {
	for _, n := range c.IndependentPackages {
		if n == name {
			return true
		}
	}
	return false
}

// groupOf returns the index of the first group whose patterns match
// name, or -1.
func (c Config) groupOf(name string) int {
	for i, g := range c.Groups {
		for _, pattern := range g.Patterns {
			if ok, err := doublestar.Match(pattern, name); err == nil && ok {
				return i
			}
		}
	}
	return -1
}
