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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// SERVER SETTINGS
// =============================================================================

// Settings are per-user server settings. Unlike BuildServer they do not
// change the protocol behavior, only where logs and telemetry go.
type Settings struct {
	Log       LogSettings       `yaml:"log"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
}

// LogSettings configure pkg/logging.
type LogSettings struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir receives a JSON log file per day. Empty disables file logging.
	Dir string `yaml:"dir"`

	// JSON forces the stderr format. Nil picks text on a terminal and JSON
	// otherwise.
	JSON *bool `yaml:"json,omitempty"`

	// Quiet disables stderr logging.
	Quiet bool `yaml:"quiet"`
}

// TelemetrySettings configure services/bsp/telemetry.
type TelemetrySettings struct {
	TraceExporter  string `yaml:"traceExporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `yaml:"metricExporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `yaml:"otlpEndpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlpInsecure"`

	// MetricsAddr is the listen address for /metrics when the prometheus
	// exporter is selected. Empty disables the listener.
	MetricsAddr string `yaml:"metricsAddr" validate:"omitempty,hostname_port"`

	// OutputPath receives stdout exporter output. stdout itself carries
	// protocol frames and is never used.
	OutputPath string `yaml:"outputPath"`
}

// DefaultSettings returns settings with telemetry off and info logging
// into ~/.config/sourcekit-bsp/logs.
func DefaultSettings() Settings {
	return Settings{
		Log: LogSettings{
			Level: "info",
			Dir:   "~/.config/sourcekit-bsp/logs",
		},
		Telemetry: TelemetrySettings{
			TraceExporter:  "none",
			MetricExporter: "none",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			OutputPath:     "~/.config/sourcekit-bsp/telemetry.json",
		},
	}
}

// DefaultSettingsPath returns ~/.config/sourcekit-bsp/settings.yaml.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sourcekit-bsp", "settings.yaml")
}

// LoadSettings reads the YAML settings at path over DefaultSettings.
//
// Description:
//
//	A missing file is not an error: the defaults are returned. Keys absent
//	from the file keep their default values.
//
// Outputs:
//
//	Settings - The merged, validated settings.
//	error - Wraps ErrConfig when the file is unreadable, malformed or invalid.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(ExpandHome(path))
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, configError(path, err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), configError(path, err)
	}
	if err := s.Validate(); err != nil {
		return DefaultSettings(), configError(path, err)
	}
	return s, nil
}

// WriteSettings writes s as YAML to path, creating parent directories.
func WriteSettings(path string, s Settings) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return configError(path, err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return configError(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return configError(path, err)
	}
	return nil
}

// Validate checks the struct tags.
func (s *Settings) Validate() error {
	s.Log.Level = strings.ToLower(s.Log.Level)
	return validate.Struct(s)
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
