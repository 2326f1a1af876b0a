// Package config loads the server configuration from YAML with environment
// variable substitution and overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"feedbackloop/pkg/feedback"
	"feedbackloop/pkg/tools"
)

// Config file location constants.
const (
	UserConfigDir     = ".feedback-loop"
	ConfigFilename    = "config.yaml"
	HistoryFilename   = "history.db"
	DefaultServerName = "feedback-loop"
)

// ErrInvalidConfig matches every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ServerConfig is reported to MCP clients during initialize.
type ServerConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version,omitempty"` // Empty reports the build version
	ToolName string `yaml:"tool_name"`         // Exposed name of request_feedback
}

// UIConfig controls how the feedback UI subprocess is launched.
type UIConfig struct {
	Command []string      `yaml:"command"`           // Executable plus leading arguments
	Dir     string        `yaml:"dir,omitempty"`     // Working directory of the UI
	Env     []string      `yaml:"env,omitempty"`     // Extra KEY=VALUE pairs
	Timeout time.Duration `yaml:"timeout,omitempty"` // Zero waits for the user indefinitely
}

// DecoderConfig tunes UI output decoding.
type DecoderConfig struct {
	MaxRawLength int `yaml:"max_raw_length"` // Rune bound of the raw fallback
}

// HistoryConfig controls the SQLite invocation history.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention,omitempty"` // Entries older than this are pruned at startup; zero keeps everything
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"` // Empty disables the HTTP endpoint
}

// DebugConfig mirrors logx debug switches.
type DebugConfig struct {
	Enabled bool     `yaml:"enabled"`
	Domains []string `yaml:"domains,omitempty"`
}

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	UI      UIConfig      `yaml:"ui"`
	Decoder DecoderConfig `yaml:"decoder"`
	History HistoryConfig `yaml:"history"`
	Metrics MetricsConfig `yaml:"metrics"`
	Debug   DebugConfig   `yaml:"debug"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		History: HistoryConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills every unset field.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = DefaultServerName
	}
	if cfg.Server.ToolName == "" {
		cfg.Server.ToolName = tools.ToolRequestFeedback
	}
	if len(cfg.UI.Command) == 0 {
		cfg.UI.Command = append([]string(nil), feedback.DefaultUICommand...)
	}
	if cfg.Decoder.MaxRawLength == 0 {
		cfg.Decoder.MaxRawLength = feedback.DefaultMaxRawLength
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(userConfigDir(), HistoryFilename)
	}
}

// Validate checks the configuration for values the server cannot use.
func (c *Config) Validate() error {
	if len(c.UI.Command) == 0 || c.UI.Command[0] == "" {
		return fmt.Errorf("%w: ui.command must name an executable", ErrInvalidConfig)
	}
	if c.UI.Timeout < 0 {
		return fmt.Errorf("%w: ui.timeout must not be negative", ErrInvalidConfig)
	}
	if c.Decoder.MaxRawLength < 0 {
		return fmt.Errorf("%w: decoder.max_raw_length must not be negative", ErrInvalidConfig)
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("%w: history.retention must not be negative", ErrInvalidConfig)
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("%w: history.path is required when history is enabled", ErrInvalidConfig)
	}
	if c.Server.ToolName == "" {
		return fmt.Errorf("%w: server.tool_name must not be empty", ErrInvalidConfig)
	}
	if c.UI.Dir != "" {
		info, err := os.Stat(c.UI.Dir)
		if err != nil {
			return fmt.Errorf("%w: ui.dir: %v", ErrInvalidConfig, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: ui.dir %s is not a directory", ErrInvalidConfig, c.UI.Dir)
		}
	}
	return nil
}

// userConfigDir returns ~/.feedback-loop, or a relative .feedback-loop when the
// home directory is unknown.
func userConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return UserConfigDir
	}
	return filepath.Join(home, UserConfigDir)
}

// DefaultPath returns the config file consulted when no path is given.
func DefaultPath() string {
	return filepath.Join(userConfigDir(), ConfigFilename)
}
