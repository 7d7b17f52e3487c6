package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars expands environment variables in path-like fields.
func substituteEnvVars(cfg *Config) {
	cfg.Database.Path = expandEnvVar(cfg.Database.Path)
	cfg.Compare.Path = expandEnvVar(cfg.Compare.Path)
	cfg.Removal.SafetyPath = expandEnvVar(cfg.Removal.SafetyPath)
	cfg.Removal.DuplicatesPath = expandEnvVar(cfg.Removal.DuplicatesPath)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// Overrides carries CLI flag values. Zero values leave the file config untouched.
type Overrides struct {
	Database    string
	Compare     string
	Preset      string
	LogLevel    string
	LogFormat   string
	GroupColumn string
	IncludeNull bool
	Tags        bool
	NoDupes     bool
	Timeout     float64
	BatchSize   int
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(o Overrides) error {
	if o.Preset != "" {
		if err := c.UsePreset(o.Preset); err != nil {
			return err
		}
	}
	if o.Database != "" {
		c.Database.Path = o.Database
	}
	if o.Compare != "" {
		c.Compare.Enabled = true
		c.Compare.Path = o.Compare
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.GroupColumn != "" {
		c.Grouping.Enabled = true
		c.Grouping.Column = o.GroupColumn
	}
	if o.IncludeNull {
		c.Grouping.IncludeNull = true
	}
	if o.Tags {
		c.Tags.Enabled = true
	}
	if o.NoDupes {
		c.Duplicates.Enabled = false
	}
	if o.Timeout > 0 {
		c.Scan.TimeoutSeconds = o.Timeout
	}
	if o.BatchSize > 0 {
		c.Removal.BatchSize = o.BatchSize
	}
	return nil
}
