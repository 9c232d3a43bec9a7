// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the optional taskapply.yaml settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/taskapply/services/apply/conflict"
	"github.com/AleutianAI/taskapply/services/apply/engine"
)

// DefaultFileName is the settings file looked up by the CLI.
const DefaultFileName = "taskapply.yaml"

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// configValidate is the validator instance for configuration types.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	_ = configValidate.RegisterValidation("filemode", validateFileMode)
	_ = configValidate.RegisterValidation("singleline", validateSingleLine)
}

// validateFileMode accepts octal permission strings such as "0644".
func validateFileMode(fl validator.FieldLevel) bool {
	_, err := parseMode(fl.Field().String())
	return err == nil
}

// validateSingleLine rejects strings containing line breaks. Conflict
// labels end up on marker lines.
func validateSingleLine(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), "\r\n")
}

// =============================================================================
// Types
// =============================================================================

// Config is the full settings tree.
type Config struct {
	Apply     ApplyConfig     `yaml:"apply"`
	Conflict  ConflictConfig  `yaml:"conflict"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ApplyConfig tunes the engine.
type ApplyConfig struct {
	FileMode  string `yaml:"file_mode" validate:"required,filemode"` // e.g. "0644"
	DirMode   string `yaml:"dir_mode" validate:"required,filemode"`  // e.g. "0755"
	MaxOffset int    `yaml:"max_offset" validate:"gte=0"`            // 0 searches the whole file
}

// ConflictConfig sets the marker labels.
type ConflictConfig struct {
	OursLabel   string `yaml:"ours_label" validate:"required,max=64,singleline"`
	TheirsLabel string `yaml:"theirs_label" validate:"required,max=64,singleline"`

	// TaskIDInLabel appends the short task id to TheirsLabel.
	TaskIDInLabel bool `yaml:"task_id_in_label"`
}

// LoggingConfig mirrors the CLI logging flags.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig selects exporters.
type TelemetryConfig struct {
	// Exporter is "none" or "stdout".
	Exporter string `yaml:"exporter" validate:"oneof=none stdout"`

	// MetricsFile, when set, receives a Prometheus text snapshot after a run.
	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Apply: ApplyConfig{
			FileMode: "0644",
			DirMode:  "0755",
		},
		Conflict: ConflictConfig{
			OursLabel:     conflict.DefaultOursLabel,
			TheirsLabel:   conflict.DefaultTheirsLabel,
			TaskIDInLabel: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Exporter: "none",
		},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads settings from path over the defaults.
//
// # Description
//
// An empty path returns Default(). Unknown keys are rejected so typos
// surface instead of being ignored.
//
// # Inputs
//
//   - path: YAML file to read, or "".
//
// # Outputs
//
//   - *Config: validated settings.
//   - error: wraps ErrInvalidConfig on read, decode or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EngineOptions converts the apply and conflict settings. taskID is
// appended to the theirs label when TaskIDInLabel is set and it is not
// empty.
func (c *Config) EngineOptions(taskID string) engine.Options {
	opts := engine.DefaultOptions()
	if mode, err := parseMode(c.Apply.FileMode); err == nil {
		opts.FileMode = mode
	}
	if mode, err := parseMode(c.Apply.DirMode); err == nil {
		opts.DirMode = mode
	}
	opts.MaxOffset = c.Apply.MaxOffset

	opts.Labels = conflict.Labels{Ours: c.Conflict.OursLabel, Theirs: c.Conflict.TheirsLabel}
	if c.Conflict.TaskIDInLabel && taskID != "" {
		opts.Labels.Theirs += " " + taskID
	}
	return opts
}

func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, err
	}
	if v == 0 || v > 0o777 {
		return 0, fmt.Errorf("mode %s out of range", s)
	}
	return os.FileMode(v), nil
}
