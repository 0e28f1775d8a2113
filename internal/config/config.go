// Package config loads engine configuration from an optional YAML file and
// environment overrides. Flags, file, and environment resolve in the usual
// order: defaults, then file, then environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment override names.
const (
	EnvDBPath        = "FAILURE_ENGINE_DB"
	EnvAnalyzerURL   = "FAILURE_ENGINE_ANALYZER_URL"
	EnvAnalyzerTmout = "FAILURE_ENGINE_ANALYZER_TIMEOUT"
	EnvSimilarLimit  = "FAILURE_ENGINE_SIMILAR_LIMIT"
	EnvListenAddr    = "FAILURE_ENGINE_LISTEN"
	EnvLogLevel      = "FAILURE_ENGINE_LOG_LEVEL"
	EnvLogFormat     = "FAILURE_ENGINE_LOG_FORMAT"
)

// Config is the resolved engine configuration. An empty AnalyzerURL means
// no analyzer service is configured and the heuristic fallback classifies
// every capture.
type Config struct {
	DBPath          string
	AnalyzerURL     string
	AnalyzerTimeout time.Duration
	SimilarLimit    int
	ListenAddr      string
	LogLevel        string
	LogFormat       string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:          ".failure-engine/failures.db",
		AnalyzerTimeout: 30 * time.Second,
		SimilarLimit:    10,
		ListenAddr:      ":8085",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// fileConfig is the YAML shape; durations are Go duration strings.
type fileConfig struct {
	DBPath          *string `yaml:"db_path"`
	AnalyzerURL     *string `yaml:"analyzer_url"`
	AnalyzerTimeout *string `yaml:"analyzer_timeout"`
	SimilarLimit    *int    `yaml:"similar_limit"`
	ListenAddr      *string `yaml:"listen_addr"`
	LogLevel        *string `yaml:"log_level"`
	LogFormat       *string `yaml:"log_format"`
}

// Load resolves the configuration: defaults, then the YAML file at path if
// path is non-empty, then environment variables. A missing file at an
// explicitly given path is an error; an empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
		if err := cfg.applyFile(&fc); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(fc *fileConfig) error {
	if fc.DBPath != nil {
		c.DBPath = *fc.DBPath
	}
	if fc.AnalyzerURL != nil {
		c.AnalyzerURL = *fc.AnalyzerURL
	}
	if fc.AnalyzerTimeout != nil {
		d, err := time.ParseDuration(*fc.AnalyzerTimeout)
		if err != nil {
			return fmt.Errorf("parse analyzer_timeout: %w", err)
		}
		c.AnalyzerTimeout = d
	}
	if fc.SimilarLimit != nil {
		c.SimilarLimit = *fc.SimilarLimit
	}
	if fc.ListenAddr != nil {
		c.ListenAddr = *fc.ListenAddr
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		c.LogFormat = *fc.LogFormat
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvAnalyzerURL); v != "" {
		c.AnalyzerURL = v
	}
	if v := os.Getenv(EnvAnalyzerTmout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvAnalyzerTmout, err)
		}
		c.AnalyzerTimeout = d
	}
	if v := os.Getenv(EnvSimilarLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvSimilarLimit, err)
		}
		c.SimilarLimit = n
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.AnalyzerTimeout <= 0 {
		return fmt.Errorf("analyzer_timeout must be positive, got %s", c.AnalyzerTimeout)
	}
	if c.SimilarLimit < 0 {
		return fmt.Errorf("similar_limit must not be negative, got %d", c.SimilarLimit)
	}
	return nil
}
