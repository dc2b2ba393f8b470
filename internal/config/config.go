// Package config handles configuration loading and validation for the
// snapshot updater.
//
// Configuration is read from a YAML file, environment variables inside the
// file are expanded, and MAPUPDATE_* environment variables override
// individual fields afterwards.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	apperrors "github.com/cthulhustig/autojimmy-data/internal/errors"
	"github.com/cthulhustig/autojimmy-data/internal/validation"
)

// Config is the complete updater configuration.
type Config struct {
	// BaseURL is the Traveller Map instance to mirror.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// DataDir is the root of the snapshot tree.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// Milieux lists the milieu codes to mirror.
	Milieux []string `yaml:"milieux" env:"MILIEUX"`

	HTTP   HTTPConfig   `yaml:"http" envPrefix:"HTTP_"`
	Git    GitConfig    `yaml:"git" envPrefix:"GIT_"`
	Report ReportConfig `yaml:"report" envPrefix:"REPORT_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
}

// HTTPConfig configures the downloader.
type HTTPConfig struct {
	// TimeoutSec is the per-request timeout in seconds.
	TimeoutSec int `yaml:"timeout_sec" env:"TIMEOUT_SEC"`

	// Retries is the number of retry attempts for transient failures.
	Retries int `yaml:"retries" env:"RETRIES"`

	// RetryDelaySec is the delay before the first retry, in seconds.
	// The delay doubles after each failed attempt.
	RetryDelaySec int `yaml:"retry_delay_sec" env:"RETRY_DELAY_SEC"`

	// Concurrency bounds in-flight sector downloads. 1 means strictly
	// sequential fetching.
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent" env:"USER_AGENT"`
}

// GitConfig configures the commit step.
type GitConfig struct {
	// Enabled turns the commit step on. When false, `mapupdate commit`
	// reports what it would do and exits.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// RepoPath is the repository root. Empty means the current directory.
	RepoPath string `yaml:"repo_path" env:"REPO_PATH"`

	// Remote is pushed to when Push is true.
	Remote string `yaml:"remote" env:"REMOTE"`

	// Push pushes the commit after creating it.
	Push bool `yaml:"push" env:"PUSH"`

	// MessagePrefix starts the generated commit message.
	MessagePrefix string `yaml:"message_prefix" env:"MESSAGE_PREFIX"`
}

// ReportConfig configures per-run download reports.
type ReportConfig struct {
	// Enabled turns report writing on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Dir is where parquet report files are written.
	Dir string `yaml:"dir" env:"DIR"`

	// Compression is the parquet compression codec (zstd, snappy, gzip,
	// lz4, none).
	Compression string `yaml:"compression" env:"COMPRESSION"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is text, json, or empty for auto (json when stdout is not a
	// terminal).
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	milieux := make([]string, len(DefaultMilieux))
	copy(milieux, DefaultMilieux)

	return &Config{
		BaseURL: DefaultBaseURL,
		DataDir: DefaultDataDir,
		Milieux: milieux,
		HTTP: HTTPConfig{
			TimeoutSec:    int(DefaultHTTPTimeout / time.Second),
			Retries:       DefaultHTTPRetries,
			RetryDelaySec: int(DefaultRetryDelay / time.Second),
			Concurrency:   DefaultConcurrency,
			UserAgent:     DefaultUserAgent,
		},
		Git: GitConfig{
			Enabled:       true,
			Remote:        DefaultRemote,
			MessagePrefix: DefaultCommitPrefix,
		},
		Report: ReportConfig{
			Enabled:     true,
			Dir:         DefaultReportDir,
			Compression: DefaultReportCompression,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then applies MAPUPDATE_*
// environment overrides. A missing file is not an error; the caller decides
// whether defaults alone are acceptable.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if envErr := applyEnv(cfg); envErr != nil {
				return nil, envErr
			}
			return cfg, err
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables referenced inside the file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides config fields from MAPUPDATE_* environment variables.
func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "MAPUPDATE_"}); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	return nil
}

// Timeout returns the per-request timeout as a duration.
func (c *HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// RetryDelay returns the initial retry delay as a duration.
func (c *HTTPConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := apperrors.NewValidationErrors()

	if cfg.BaseURL == "" {
		errs.AddMissing("base_url")
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.AddField("base_url", "must be an absolute http(s) URL")
	}

	if cfg.DataDir == "" {
		errs.AddMissing("data_dir")
	}

	if len(cfg.Milieux) == 0 {
		errs.AddMissing("milieux")
	}
	seen := make(map[string]bool, len(cfg.Milieux))
	for i, m := range cfg.Milieux {
		if err := validation.ValidateMilieu(m); err != nil {
			errs.AddField(fmt.Sprintf("milieux[%d]", i), err.Error())
			continue
		}
		if seen[m] {
			errs.AddField(fmt.Sprintf("milieux[%d]", i), "duplicate milieu "+m)
		}
		seen[m] = true
	}

	if cfg.HTTP.TimeoutSec <= 0 {
		errs.AddField("http.timeout_sec", "must be positive")
	}
	if cfg.HTTP.Retries < 0 {
		errs.AddField("http.retries", "cannot be negative")
	}
	if cfg.HTTP.RetryDelaySec < 0 {
		errs.AddField("http.retry_delay_sec", "cannot be negative")
	}
	if cfg.HTTP.Concurrency < 1 {
		errs.AddField("http.concurrency", "must be at least 1")
	}

	if cfg.Report.Enabled && cfg.Report.Dir == "" {
		errs.AddField("report.dir", "cannot be empty when reports are enabled")
	}

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs.AddField("log.format", "must be text or json")
	}

	return errs.Err()
}
