// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for AXM tools.
//
// Configuration is loaded from a single YAML file specified by:
//   - AXM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
// When no file is specified, Defaults() applies.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that locates the config file.
const EnvVar = "AXM_CONFIG"

// Config is the master configuration for the AXM compiler and
// verifier.
type Config struct {
	// Scan bounds the binary record engine.
	Scan ScanConfig `yaml:"scan"`

	// Writer configures the columnar shard writer.
	Writer WriterConfig `yaml:"writer"`

	// Signing configures the publisher identity.
	Signing SigningConfig `yaml:"signing"`
}

// ScanConfig bounds the framed-scan engine. LatentPayloadLen is
// declared per capsule in meta.json and is not configured here.
type ScanConfig struct {
	// ResidualMaxLen is the hard cap on a residual payload's declared
	// length. Larger declared lengths signal corruption or a length
	// bomb and abort compilation.
	ResidualMaxLen uint32 `yaml:"residual_max_len"`

	// ResyncWindow is the maximum number of bytes the scanner will
	// skip while searching for the next record magic after a
	// corruption event.
	ResyncWindow int64 `yaml:"resync_window"`
}

// WriterConfig pins the columnar writer options that affect byte
// output. Changing any of these changes every shard's Merkle root.
type WriterConfig struct {
	// RowGroupSize is the fixed parquet row group size.
	RowGroupSize int64 `yaml:"row_group_size"`
}

// SigningConfig locates the publisher's Ed25519 key material.
type SigningConfig struct {
	// KeyFile is the path to a file holding the 32-byte Ed25519 seed
	// as 64 hex characters. Empty means the caller must supply a key
	// programmatically (tests do this).
	KeyFile string `yaml:"key_file"`
}

// Defaults returns the configuration used when no config file is
// given. The scan bounds follow the recorder's published limits.
func Defaults() Config {
	return Config{
		Scan: ScanConfig{
			ResidualMaxLen: 16 * 1024 * 1024, // 16 MiB
			ResyncWindow:   64 * 1024 * 1024, // 64 MiB
		},
		Writer: WriterConfig{
			RowGroupSize: 4096,
		},
	}
}

// Load reads and validates the config file at path. An empty path
// falls back to the AXM_CONFIG environment variable, and to
// Defaults() when that is unset too.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Defaults(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations that would make the scanner
// unbounded or the writer degenerate.
func (c Config) Validate() error {
	if c.Scan.ResidualMaxLen == 0 {
		return fmt.Errorf("scan.residual_max_len must be positive")
	}
	if c.Scan.ResyncWindow <= 0 {
		return fmt.Errorf("scan.resync_window must be positive")
	}
	if c.Writer.RowGroupSize <= 0 {
		return fmt.Errorf("writer.row_group_size must be positive")
	}
	return nil
}
