package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath  = "FEEDBACK_LOOP_CONFIG"
	EnvUICommand   = "FEEDBACK_UI_COMMAND"
	EnvUIDir       = "FEEDBACK_UI_DIR"
	EnvHistoryPath = "FEEDBACK_HISTORY_PATH"
	EnvMetricsAddr = "FEEDBACK_METRICS_ADDR"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load resolves the config file and returns the validated configuration.
//
// The file is path if non-empty, else $FEEDBACK_LOOP_CONFIG, else the default
// path when it exists. With no file the defaults are used. Environment
// overrides are applied last.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}

	cfg, err := LoadFile(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = Default()
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile parses one YAML file with ${VAR} substitution. Unset fields keep
// their defaults; validation is left to the caller.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(substituteEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML %s: %w", path, err)
	}
	return cfg, nil
}

// substituteEnv replaces ${VAR} placeholders; unknown variables are left as-is.
func substituteEnv(data string) string {
	return envVarRegex.ReplaceAllStringFunc(data, func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func applyEnvOverrides(cfg *Config) {
	if command := strings.Fields(os.Getenv(EnvUICommand)); len(command) > 0 {
		cfg.UI.Command = command
	}
	if dir := os.Getenv(EnvUIDir); dir != "" {
		cfg.UI.Dir = dir
	}
	if path := os.Getenv(EnvHistoryPath); path != "" {
		cfg.History.Path = path
	}
	if addr := os.Getenv(EnvMetricsAddr); addr != "" {
		cfg.Metrics.Listen = addr
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
