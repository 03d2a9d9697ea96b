// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file name searched for when no path is given.
const FileName = "ucdl.yaml"

// EnvPrefix prefixes every environment override, e.g. UCDL_BATCH_SIZE or
// UCDL_TELEMETRY_TRACE_EXPORTER.
const EnvPrefix = "UCDL"

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"validate":          "validate_output",
	"preserve-metadata": "preserve_metadata",
	"backup":            "generate_backup",
	"batch-size":        "batch_size",
	"concurrency":       "concurrency",
	"dry-run":           "dry_run",
	"log-level":         "log_level",
	"log-dir":           "log_dir",
	"pattern":           "file_pattern",
	"history-dir":       "history_dir",
	"trace-exporter":    "telemetry.trace_exporter",
	"metric-exporter":   "telemetry.metric_exporter",
	"metrics-textfile":  "telemetry.metrics_textfile",
}

// Loader reads settings through viper over an afero file system.
//
// Thread Safety: Not safe for concurrent use.
type Loader struct {
	fs afero.Fs
	v  *viper.Viper
}

// NewLoader creates a loader over fs. A nil fs uses the OS file system.
func NewLoader(fs afero.Fs) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return &Loader{fs: fs, v: v}
}

// BindFlags binds every known flag present in flags. Flags override file
// and environment values only when set on the command line.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := l.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the settings.
//
// Description:
//
//	With an explicit path the file must exist. Without one, FileName is
//	searched in the working directory and ~/.aleutian/ucdl; a missing file
//	leaves the defaults in place. The merged settings are validated.
//
// Outputs:
//   - *Config: The validated settings.
//   - error: File read and decode errors, or a *ucdl.ConfigurationError.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
	} else {
		l.v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".aleutian", "ucdl"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Used returns the config file that was read, or "" when none was found.
func (l *Loader) Used() string {
	return l.v.ConfigFileUsed()
}

// WriteDefault writes the built-in settings to path as YAML. An existing
// file is only replaced when force is set.
func WriteDefault(fs afero.Fs, path string, force bool) error {
	if !force {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if exists {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := afero.WriteFile(fs, path, data, 0640); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Marshal renders cfg as YAML with a short header.
func Marshal(cfg Config) ([]byte, error) {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	header := "# Legacy constraint migration settings.\n# Environment variables override these with the " + EnvPrefix + "_ prefix.\n"
	return append([]byte(header), body...), nil
}

// setDefaults registers every field of cfg as a viper default so that
// environment overrides apply to keys absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("validate_output", cfg.ValidateOutput)
	v.SetDefault("preserve_metadata", cfg.PreserveMetadata)
	v.SetDefault("generate_backup", cfg.GenerateBackup)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("concurrency", cfg.Concurrency)
	v.SetDefault("dry_run", cfg.DryRun)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_dir", cfg.LogDir)
	v.SetDefault("file_pattern", cfg.FilePattern)
	v.SetDefault("history_dir", cfg.HistoryDir)

	t := cfg.Telemetry
	v.SetDefault("telemetry.service_name", t.ServiceName)
	v.SetDefault("telemetry.service_version", t.ServiceVersion)
	v.SetDefault("telemetry.environment", t.Environment)
	v.SetDefault("telemetry.trace_exporter", t.TraceExporter)
	v.SetDefault("telemetry.metric_exporter", t.MetricExporter)
	v.SetDefault("telemetry.otlp_endpoint", t.OTLPEndpoint)
	v.SetDefault("telemetry.otlp_insecure", t.OTLPInsecure)
	v.SetDefault("telemetry.metrics_textfile", t.MetricsTextfile)
}
