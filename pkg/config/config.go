// Package config loads the application configuration from a JSON file with
// environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nxank4/zerog/pkg/llm"
	"github.com/nxank4/zerog/pkg/logger"
)

// Config represents the application configuration.
type Config struct {
	// Model configuration
	Model llm.Model `json:"model"`

	// Workspace is the root directory file paths resolve against.
	Workspace string `json:"workspace,omitempty"`

	// MaxIterations bounds the number of tasks driven in one run.
	MaxIterations int `json:"maxIterations,omitempty"`

	// AuditPath is the SQLite execution log location. Empty disables it.
	AuditPath string `json:"auditPath,omitempty"`

	// Log configuration
	Log *LogConfig `json:"log,omitempty"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	File   string `json:"file,omitempty"`   // log file path (empty = no file logging)
	Prefix string `json:"prefix,omitempty"` // log prefix
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() *LogConfig {
	homeDir, _ := os.UserHomeDir()
	return &LogConfig{
		Level:  "info",
		File:   filepath.Join(homeDir, ".zerog", "zerog.log"),
		Prefix: "[zerog] ",
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return &Config{
		Model: llm.Model{
			ID:       "glm-4.7",
			Provider: "zai",
			BaseURL:  "https://api.z.ai/api/paas/v4",
		},
		Workspace:     cwd,
		MaxIterations: 10,
		AuditPath:     filepath.Join(homeDir, ".zerog", "audit.db"),
		Log:           DefaultLogConfig(),
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".zerog", "config.json")
}

// Load reads configuration from path, falling back to defaults for anything
// unset. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.Log == nil {
		cfg.Log = DefaultLogConfig()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.Workspace == "" {
		cfg.Workspace, _ = os.Getwd()
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if baseURL := os.Getenv("ZEROG_BASE_URL"); baseURL != "" {
		c.Model.BaseURL = baseURL
	}
	if model := os.Getenv("ZEROG_MODEL"); model != "" {
		c.Model.ID = model
	}
}

// CreateLogger creates a logger from the log configuration.
func (c *LogConfig) CreateLogger() (*logger.Logger, error) {
	if c == nil {
		c = DefaultLogConfig()
	}
	return logger.New(&logger.Config{
		Level:    logger.ParseLevel(c.Level),
		Prefix:   c.Prefix,
		Console:  true,
		FilePath: c.File,
	})
}
