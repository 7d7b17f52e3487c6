// Package config provides configuration structures and loading for smdedupe.
package config

import (
	"fmt"
	"time"
)

// Compare modes for the comparison matcher.
const (
	CompareExact    = "exact"
	CompareContains = "contains"
)

// Config represents the complete application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Duplicates DuplicatesConfig `yaml:"duplicates" mapstructure:"duplicates"`
	Grouping   GroupingConfig   `yaml:"grouping" mapstructure:"grouping"`
	Tags       TagsConfig       `yaml:"tags" mapstructure:"tags"`
	Compare    CompareConfig    `yaml:"compare" mapstructure:"compare"`
	Replace    ReplaceConfig    `yaml:"replace" mapstructure:"replace"`
	Scan       ScanConfig       `yaml:"scan" mapstructure:"scan"`
	Removal    RemovalConfig    `yaml:"removal" mapstructure:"removal"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig locates the primary SMDB file.
type DatabaseConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	Table          string `yaml:"table" mapstructure:"table"`
	Extension      string `yaml:"extension" mapstructure:"extension"` // accepted file extension, e.g. ".sqlite"
	BusyTimeoutMS  int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
}

// DuplicatesConfig controls the duplicate filename search.
type DuplicatesConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Preset  string   `yaml:"preset" mapstructure:"preset"`
	Order   []string `yaml:"order" mapstructure:"order"` // tie-break rules, highest priority first
}

// GroupingConfig narrows duplicate partitions to rows sharing a column value.
type GroupingConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Column      string `yaml:"column" mapstructure:"column"`
	IncludeNull bool   `yaml:"include_null" mapstructure:"include_null"` // process rows without a group together instead of skipping them
}

// TagsConfig controls the AudioSuite tag search.
type TagsConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Preset  string   `yaml:"preset" mapstructure:"preset"`
	List    []string `yaml:"list" mapstructure:"list"`
}

// CompareConfig controls matching against a second database.
type CompareConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Mode    string `yaml:"mode" mapstructure:"mode"` // exact or contains
}

// ReplaceConfig holds find/replace defaults.
type ReplaceConfig struct {
	Column    string `yaml:"column" mapstructure:"column"`
	MarkDirty bool   `yaml:"mark_dirty" mapstructure:"mark_dirty"`
}

// ScanConfig holds scan hardening settings.
type ScanConfig struct {
	TimeoutSeconds float64 `yaml:"timeout_seconds" mapstructure:"timeout_seconds"` // 0 disables the soft timeout
}

// RemovalConfig controls how a finalized removal set is applied.
type RemovalConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	SafetyCopy     bool   `yaml:"safety_copy" mapstructure:"safety_copy"`
	SafetyPath     string `yaml:"safety_path" mapstructure:"safety_path"`
	DuplicatesPath string `yaml:"duplicates_path" mapstructure:"duplicates_path"`
	Verify         string `yaml:"verify" mapstructure:"verify"` // count, sha256 or skip
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Table:          "justinmetadata",
			Extension:      ".sqlite",
			BusyTimeoutMS:  5000,
			MaxConnections: 4,
		},
		Duplicates: DuplicatesConfig{
			Enabled: true,
			Preset:  PresetDefault,
		},
		Grouping: GroupingConfig{
			Enabled:     false,
			Column:      "Show",
			IncludeNull: false,
		},
		Tags: TagsConfig{
			Enabled: false,
			Preset:  PresetDefault,
		},
		Compare: CompareConfig{
			Mode: CompareExact,
		},
		Replace: ReplaceConfig{
			Column:    "Filepath",
			MarkDirty: true,
		},
		Removal: RemovalConfig{
			BatchSize:  500,
			SafetyCopy: true,
			Verify:     "count",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// EffectiveOrder returns the configured tie-break rules, falling back to the
// selected preset when none are listed.
func (c *Config) EffectiveOrder() []string {
	if len(c.Duplicates.Order) > 0 {
		return append([]string(nil), c.Duplicates.Order...)
	}
	if p, ok := LookupPreset(c.Duplicates.Preset); ok {
		return p.Order
	}
	return nil
}

// EffectiveTags returns the configured tag list, falling back to the selected
// preset when none are listed.
func (c *Config) EffectiveTags() []string {
	if len(c.Tags.List) > 0 {
		return append([]string(nil), c.Tags.List...)
	}
	if p, ok := LookupPreset(c.Tags.Preset); ok {
		return p.Tags
	}
	return nil
}

// UsePreset replaces the order and tag lists with the named preset.
func (c *Config) UsePreset(name string) error {
	p, ok := LookupPreset(name)
	if !ok {
		return fmt.Errorf("preset %q not found (available: %v)", name, PresetNames())
	}
	c.Duplicates.Preset = p.Name
	c.Duplicates.Order = p.Order
	c.Tags.Preset = p.Name
	c.Tags.List = p.Tags
	return nil
}

// ScanTimeout returns the soft per-detector timeout, or 0 when disabled.
func (c *Config) ScanTimeout() time.Duration {
	if c.Scan.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Scan.TimeoutSeconds * float64(time.Second))
}
