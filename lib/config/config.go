// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for forge components.
//
// Configuration is loaded from a single YAML file specified by:
//   - FORGE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. Running without a
// config file uses Default() unchanged, which is a fully working setup
// for npm-based projects.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Installer tools this system knows how to invoke.
const (
	// ToolNPM is the canonical installer.
	ToolNPM = "npm"
	// ToolPNPM is the alternative installer for projects that prefer
	// the pnpm store layout.
	ToolPNPM = "pnpm"
)

// npmInstallArgs is the canonical npm invocation: no lockfile writes
// (the sandbox filesystem is ephemeral), no audit or funding chatter in
// the output stream, and bounded fetch retries so a flaky registry
// fails fast instead of hanging the install step.
var npmInstallArgs = []string{
	"install",
	"--no-package-lock",
	"--no-audit",
	"--no-fund",
	"--fetch-retries", "2",
}

// pnpmInstallArgs mirrors the npm invocation for pnpm: ignore any
// lockfile the model happened to emit, and keep the output stream
// append-only so normalization sees plain lines.
var pnpmInstallArgs = []string{
	"install",
	"--no-frozen-lockfile",
	"--reporter=append-only",
}

// Config is the master configuration for a forge session.
type Config struct {
	// Installer configures the dependency install step.
	Installer InstallerConfig `yaml:"installer"`

	// Dev configures the dev-server command.
	Dev DevConfig `yaml:"dev"`

	// Stop configures dev-server shutdown.
	Stop StopConfig `yaml:"stop"`

	// Feed configures the status HTTP/WebSocket server.
	Feed FeedConfig `yaml:"feed"`

	// Replay configures the session replay log.
	Replay ReplayConfig `yaml:"replay"`
}

// InstallerConfig selects and tunes the package installer.
type InstallerConfig struct {
	// Tool is the installer binary: "npm" (default) or "pnpm".
	Tool string `yaml:"tool"`

	// ExtraArgs are appended to the canonical install invocation.
	ExtraArgs []string `yaml:"extra_args"`
}

// CommandLine returns the install command and its full argument list.
func (installer InstallerConfig) CommandLine() (string, []string) {
	var args []string
	switch installer.Tool {
	case ToolPNPM:
		args = append(args, pnpmInstallArgs...)
	default:
		args = append(args, npmInstallArgs...)
	}
	args = append(args, installer.ExtraArgs...)
	tool := installer.Tool
	if tool == "" {
		tool = ToolNPM
	}
	return tool, args
}

// DevConfig configures the dev-server command.
type DevConfig struct {
	// Command is the dev-server binary. Default: npm.
	Command string `yaml:"command"`

	// Args is the dev-server argument list. Default: ["run", "dev"].
	Args []string `yaml:"args"`

	// ReadyMarkers are extra case-insensitive substrings that signal
	// server readiness, on top of the built-in set.
	ReadyMarkers []string `yaml:"ready_markers"`
}

// StopConfig configures dev-server shutdown.
type StopConfig struct {
	// Timeout bounds how long a stop waits for the process to die
	// before state is reset anyway. Duration string, default "3s".
	Timeout string `yaml:"timeout"`
}

// FeedConfig configures the status server.
type FeedConfig struct {
	// Listen is the address for the status HTTP server. Empty disables
	// the server.
	Listen string `yaml:"listen"`
}

// ReplayConfig configures the session replay log.
type ReplayConfig struct {
	// Path is where the CBOR replay log is written. Empty disables
	// logging.
	Path string `yaml:"path"`
}

// Default returns the default configuration: npm installer, "npm run
// dev" server, 3 second stop bound, no status server, no replay log.
func Default() *Config {
	return &Config{
		Installer: InstallerConfig{Tool: ToolNPM},
		Dev: DevConfig{
			Command: "npm",
			Args:    []string{"run", "dev"},
		},
		Stop: StopConfig{Timeout: "3s"},
	}
}

// Load loads configuration from the FORGE_CONFIG environment variable.
// Unset FORGE_CONFIG is not an error; defaults apply.
func Load() (*Config, error) {
	configPath := os.Getenv("FORGE_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging over
// the defaults. Environment variables do not override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Installer.Tool != "" && cfg.Installer.Tool != ToolNPM && cfg.Installer.Tool != ToolPNPM {
		errs = append(errs, fmt.Errorf("installer.tool must be %q or %q, got %q", ToolNPM, ToolPNPM, cfg.Installer.Tool))
	}
	if cfg.Dev.Command == "" {
		errs = append(errs, fmt.Errorf("dev.command is required"))
	}
	if cfg.Stop.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Stop.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("stop.timeout: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StopTimeout returns the parsed stop bound, falling back to 3s when
// unset or unparseable.
func (cfg *Config) StopTimeout() time.Duration {
	if cfg.Stop.Timeout == "" {
		return 3 * time.Second
	}
	timeout, err := time.ParseDuration(cfg.Stop.Timeout)
	if err != nil {
		return 3 * time.Second
	}
	return timeout
}
