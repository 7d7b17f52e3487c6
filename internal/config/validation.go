package config

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/smdedupe/internal/sqlutil"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateDetectors()...)
	errors = append(errors, c.validateRemoval()...)
	errors = append(errors, c.validateLogging()...)

	if c.Scan.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "scan.timeout_seconds",
			Message: "timeout_seconds cannot be negative",
		})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "database.path",
			Message: "path is required",
		})
	} else if c.Database.Extension != "" && !strings.HasSuffix(c.Database.Path, c.Database.Extension) {
		errors = append(errors, ValidationError{
			Field:   "database.path",
			Message: fmt.Sprintf("path must end in %s", c.Database.Extension),
		})
	}

	if !sqlutil.IsValidIdentifier(c.Database.Table) {
		errors = append(errors, ValidationError{
			Field:   "database.table",
			Message: "table must contain only alphanumeric characters and underscores",
		})
	}

	if c.Database.BusyTimeoutMS < 0 {
		errors = append(errors, ValidationError{
			Field:   "database.busy_timeout_ms",
			Message: "busy_timeout_ms cannot be negative",
		})
	}

	if c.Database.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "database.max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateDetectors() ValidationErrors {
	var errors ValidationErrors

	presetFields := []struct{ field, name string }{
		{"duplicates.preset", c.Duplicates.Preset},
		{"tags.preset", c.Tags.Preset},
	}
	for _, pf := range presetFields {
		if pf.name == "" {
			continue
		}
		if _, ok := LookupPreset(pf.name); !ok {
			errors = append(errors, ValidationError{
				Field:   pf.field,
				Message: fmt.Sprintf("unknown preset %q (available: %s)", pf.name, strings.Join(PresetNames(), ", ")),
			})
		}
	}

	if c.Duplicates.Enabled && len(c.EffectiveOrder()) == 0 {
		errors = append(errors, ValidationError{
			Field:   "duplicates.order",
			Message: "at least one tie-break rule is required when duplicate search is enabled",
		})
	}

	if c.Grouping.Enabled && c.Grouping.Column == "" {
		errors = append(errors, ValidationError{
			Field:   "grouping.column",
			Message: "column is required when grouping is enabled",
		})
	}

	if c.Tags.Enabled && len(c.EffectiveTags()) == 0 {
		errors = append(errors, ValidationError{
			Field:   "tags.list",
			Message: "tag list cannot be empty when tag search is enabled",
		})
	}

	if c.Compare.Enabled && c.Compare.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "compare.path",
			Message: "path is required when comparison is enabled",
		})
	}

	validModes := map[string]bool{CompareExact: true, CompareContains: true, "": true}
	if !validModes[c.Compare.Mode] {
		errors = append(errors, ValidationError{
			Field:   "compare.mode",
			Message: "mode must be 'exact' or 'contains'",
		})
	}

	return errors
}

func (c *Config) validateRemoval() ValidationErrors {
	var errors ValidationErrors

	if c.Removal.BatchSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "removal.batch_size",
			Message: "batch_size must be positive",
		})
	}

	validVerify := map[string]bool{"count": true, "sha256": true, "skip": true, "": true}
	if !validVerify[c.Removal.Verify] {
		errors = append(errors, ValidationError{
			Field:   "removal.verify",
			Message: "verify must be 'count', 'sha256', or 'skip'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
