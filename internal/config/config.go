// Package config loads the pwmbench configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mscrnt/pwmbench/pkg/agent"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables
const (
	EnvConfig = "PWMBENCH_CONFIG"
	EnvDBPath = "PWMBENCH_DB_PATH"
)

// Config is the contents of config.yaml
type Config struct {
	Bench     harness.Config `yaml:"bench"`
	DBPath    string         `yaml:"db_path"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"`
	Agent     agent.Config   `yaml:"agent"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Bench:     harness.DefaultConfig(),
		DBPath:    defaultDBPath(),
		LogLevel:  "info",
		LogFormat: "text",
		Agent:     agent.DefaultConfig(),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if err := c.Bench.Validate(); err != nil {
		return fmt.Errorf("bench: %w", err)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Agent.Port <= 0 || c.Agent.Port > 65535 {
		return fmt.Errorf("agent: invalid port: %d", c.Agent.Port)
	}
	return nil
}

// Path resolves the configuration file: explicit, then PWMBENCH_CONFIG,
// then ~/.pwmbench/config.yaml
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pwmbench", "config.yaml")
}

// Load reads the configuration file over the defaults. A missing file is
// only an error when it was named explicitly. PWMBENCH_DB_PATH overrides
// db_path.
func Load(explicit string) (Config, error) {
	cfg := Default()

	path := Path(explicit)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && explicit == "" && os.Getenv(EnvConfig) == "":
		default:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if p := os.Getenv(EnvDBPath); p != "" {
		cfg.DBPath = p
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// NewLogger builds a logger from log_level and log_format
func (c Config) NewLogger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pwmbench.db"
	}
	return filepath.Join(home, ".pwmbench", "pwmbench.db")
}
