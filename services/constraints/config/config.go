// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates migration settings.
//
// Settings come from, in increasing precedence: built-in defaults, a YAML
// file (ucdl.yaml), UCDL_* environment variables, and command-line flags.
// Invalid settings are reported as *ucdl.ConfigurationError.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianUCDL/pkg/logging"
	"github.com/AleutianAI/AleutianUCDL/pkg/telemetry"
	"github.com/AleutianAI/AleutianUCDL/services/constraints/ucdl"
)

// DefaultFilePattern matches every source extension the parser understands.
const DefaultFilePattern = `\.(js|jsx|mjs|cjs|ts|tsx|mts|cts|json|ya?ml)$`

// DefaultHistoryDir is where run reports are kept unless configured.
const DefaultHistoryDir = "~/.aleutian/ucdl/history"

// ErrInvalidSetting is the cause of a ConfigurationError for a value that
// failed validation.
var ErrInvalidSetting = errors.New("invalid setting")

// Config holds the migration settings.
type Config struct {
	// ValidateOutput runs the validator over every migrated constraint.
	ValidateOutput bool `mapstructure:"validate_output" yaml:"validate_output" json:"validate_output"`

	// PreserveMetadata keeps the original record under
	// metadata.migrationInfo.originalData.
	PreserveMetadata bool `mapstructure:"preserve_metadata" yaml:"preserve_metadata" json:"preserve_metadata"`

	// GenerateBackup writes <path>.backup.<epoch-ms> before migrating a file.
	GenerateBackup bool `mapstructure:"generate_backup" yaml:"generate_backup" json:"generate_backup"`

	// BatchSize is the number of records migrated per batch.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" json:"batch_size" validate:"gt=0,lte=10000"`

	// Concurrency bounds the workers within one batch.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency" validate:"gte=1,lte=256"`

	// DryRun migrates and reports without writing any file.
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run" json:"dry_run"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"oneof=debug info warn warning error"`

	// LogDir enables JSON file logging when set.
	LogDir string `mapstructure:"log_dir" yaml:"log_dir" json:"log_dir"`

	// FilePattern is a regular expression matched against file names during
	// directory migration.
	FilePattern string `mapstructure:"file_pattern" yaml:"file_pattern" json:"file_pattern" validate:"required,regexp"`

	// HistoryDir holds the run history database. Empty disables history.
	HistoryDir string `mapstructure:"history_dir" yaml:"history_dir" json:"history_dir"`

	// Telemetry configures tracing and metrics export.
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ValidateOutput:   true,
		PreserveMetadata: true,
		GenerateBackup:   true,
		BatchSize:        10,
		Concurrency:      4,
		DryRun:           false,
		LogLevel:         "info",
		FilePattern:      DefaultFilePattern,
		HistoryDir:       DefaultHistoryDir,
		Telemetry:        telemetry.DefaultConfig(),
	}
}

// Validate checks every field and returns the first problem as a
// *ucdl.ConfigurationError naming the setting by its file key.
func (c *Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validate config: %w", err)
	}
	fe := verrs[0]
	return &ucdl.ConfigurationError{
		Setting: settingName(fe.Namespace()),
		Value:   fmt.Sprint(fe.Value()),
		Cause:   fmt.Errorf("%w: must satisfy %s", ErrInvalidSetting, describeTag(fe)),
	}
}

// Logging returns the logger configuration for these settings.
func (c *Config) Logging(service string) logging.Config {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	return logging.Config{
		Level:   level,
		LogDir:  c.LogDir,
		Service: service,
	}
}

// FileMatcher compiles FilePattern.
func (c *Config) FileMatcher() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.FilePattern)
	if err != nil {
		return nil, &ucdl.ConfigurationError{Setting: "file_pattern", Value: c.FilePattern, Cause: err}
	}
	return re, nil
}

// =============================================================================
// Validator
// =============================================================================

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	configValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = configValidate.RegisterValidation("regexp", validateRegexp)
}

// validateRegexp accepts strings that compile as Go regular expressions.
func validateRegexp(fl validator.FieldLevel) bool {
	_, err := regexp.Compile(fl.Field().String())
	return err == nil
}

// settingName strips the root struct name from a validator namespace:
// "Config.telemetry.trace_exporter" becomes "telemetry.trace_exporter".
func settingName(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
