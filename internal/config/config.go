// Package config handles reading and writing .vesper/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .vesper/config.yaml.
type Config struct {
	Version     int               `yaml:"version"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Lsp         LspConfig         `yaml:"lsp"`
	Server      ServerConfig      `yaml:"server"`
	History     HistoryConfig     `yaml:"history"`
}

// InterpreterConfig holds the Julia interpreter location and depot layout.
type InterpreterConfig struct {
	Executable string `yaml:"executable"` // empty = discover via PATH or installer
	DepotPath  string `yaml:"depot_path"` // empty = ~/.julia
}

// ExecutionConfig controls startup and execution timeouts (seconds).
type ExecutionConfig struct {
	StartupTimeout  int `yaml:"startup_timeout"`   // light startup phases
	InstallTimeout  int `yaml:"install_timeout"`   // interpreter installation
	ActivateTimeout int `yaml:"activate_timeout"`  // project activation
	LspReadyTimeout int `yaml:"lsp_ready_timeout"` // first indexing run
}

// LspConfig controls the embedded language server.
type LspConfig struct {
	StdlibCacheMaxAgeDays int  `yaml:"stdlib_cache_max_age_days"`
	DiagnosticsDebounceMs int  `yaml:"diagnostics_debounce_ms"`
	IndexPackages         bool `yaml:"index_packages"`
}

// ServerConfig controls the localhost control API.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 = random port
}

// HistoryConfig controls the execution history store.
type HistoryConfig struct {
	Enabled     bool `yaml:"enabled"`
	KeepEntries int  `yaml:"keep_entries"`
}

// configDir and configFile locate the config file relative to the
// project root.
const configDir = ".vesper"
const configFile = "config.yaml"

// ReadConfig reads .vesper/config.yaml from the given project directory.
// dir is the project root (not .vesper/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// WriteConfig writes cfg to .vesper/config.yaml in the given project directory.
// Creates the .vesper/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Execution: ExecutionConfig{
			StartupTimeout:  10,
			InstallTimeout:  20 * 60,
			ActivateTimeout: 10 * 60,
			LspReadyTimeout: 5 * 60,
		},
		Lsp: LspConfig{
			StdlibCacheMaxAgeDays: 7,
			DiagnosticsDebounceMs: 300,
			IndexPackages:         true,
		},
		History: HistoryConfig{
			Enabled:     true,
			KeepEntries: 1000,
		},
	}
}
