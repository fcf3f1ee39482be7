// Package config provides configuration loading and management for gc-sentinel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Inputs   InputsConfig   `yaml:"inputs" toml:"inputs"`
	Parse    ParseConfig    `yaml:"parse" toml:"parse"`
	Analysis AnalysisConfig `yaml:"analysis" toml:"analysis"`
	Watch    WatchConfig    `yaml:"watch" toml:"watch"`
	Store    StoreConfig    `yaml:"store" toml:"store"`
	Notifier NotifierConfig `yaml:"notifier" toml:"notifier"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// InputsConfig lists the GC logs to analyze. Resources are file paths or
// http(s) URLs; Dir adds the files of a directory selected by glob patterns.
type InputsConfig struct {
	Resources []string `yaml:"resources" toml:"resources"`
	Dir       string   `yaml:"dir" toml:"dir"`
	Include   []string `yaml:"include" toml:"include"`
	Exclude   []string `yaml:"exclude" toml:"exclude"`
}

// ParseConfig tunes format detection and failure reporting.
type ParseConfig struct {
	Dialect           string `yaml:"dialect" toml:"dialect"`
	DetectWindow      int    `yaml:"detect_window" toml:"detect_window"`
	FallbackToClassic bool   `yaml:"fallback_to_classic" toml:"fallback_to_classic"`
	MaxSamples        int    `yaml:"max_samples" toml:"max_samples"`
	FetchTimeout      string `yaml:"fetch_timeout" toml:"fetch_timeout"`
}

// FetchTimeoutParsed returns the parsed timeout for remote resources.
func (p *ParseConfig) FetchTimeoutParsed() (time.Duration, error) {
	return time.ParseDuration(p.FetchTimeout)
}

// AnalysisConfig holds the thresholds a report is scored against.
type AnalysisConfig struct {
	MaxPause      string  `yaml:"max_pause" toml:"max_pause"`
	MinThroughput float64 `yaml:"min_throughput" toml:"min_throughput"`
	MaxFullGCRate float64 `yaml:"max_full_gc_per_hour" toml:"max_full_gc_per_hour"`
}

// MaxPauseParsed returns the parsed pause threshold.
func (a *AnalysisConfig) MaxPauseParsed() (time.Duration, error) {
	return time.ParseDuration(a.MaxPause)
}

// WatchConfig defines when resources are checked for changes.
type WatchConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	Cron        string `yaml:"cron" toml:"cron"`
	Notify      bool   `yaml:"notify" toml:"notify"`
	MinInterval string `yaml:"min_interval" toml:"min_interval"`
}

// MinIntervalParsed returns the parsed minimum re-parse interval.
func (w *WatchConfig) MinIntervalParsed() (time.Duration, error) {
	return time.ParseDuration(w.MinInterval)
}

// StoreConfig selects where published summaries are kept. An empty driver
// disables the history.
type StoreConfig struct {
	Driver   string `yaml:"driver" toml:"driver"`
	Path     string `yaml:"path" toml:"path"`
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	DBName   string `yaml:"dbname" toml:"dbname"`
	SSLMode  string `yaml:"sslmode" toml:"sslmode"`
}

// DSN returns the connection string for the configured driver.
func (s *StoreConfig) DSN() string {
	if s.Driver == "sqlite" {
		return s.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		s.Host, s.Port, s.User, s.Password, s.DBName, s.SSLMode,
	)
}

// NotifierConfig holds notification channel settings.
type NotifierConfig struct {
	Type       string `yaml:"type" toml:"type"`
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
	Retries    int    `yaml:"retries" toml:"retries"`
	RetryDelay string `yaml:"retry_delay" toml:"retry_delay"`
}

// RetryDelayParsed returns the parsed retry delay duration.
func (n *NotifierConfig) RetryDelayParsed() (time.Duration, error) {
	return time.ParseDuration(n.RetryDelay)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Enabled   bool `yaml:"enabled" toml:"enabled"`
	Port      int  `yaml:"port" toml:"port"`
	DeepCheck bool `yaml:"deep_check" toml:"deep_check"` // ping the history store in /healthz
}

// LoggingConfig holds the process log settings.
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	Output     string `yaml:"output" toml:"output"`
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Load reads and parses the configuration file. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with every default applied, for runs
// without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvVars expands ${VAR} and ${VAR:-default} patterns in the input string.
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) > 2 {
			defaultVal = parts[2]
		}

		if val, exists := os.LookupEnv(varName); exists {
			return val
		}
		return defaultVal
	})
}

// applyDefaults sets default values for any unset configuration fields.
func applyDefaults(cfg *Config) {
	if len(cfg.Inputs.Include) == 0 {
		cfg.Inputs.Include = []string{"*.log", "*.log.gz", "*gc*"}
	}

	if cfg.Parse.DetectWindow == 0 {
		cfg.Parse.DetectWindow = 8 * 1024
	}
	if cfg.Parse.MaxSamples == 0 {
		cfg.Parse.MaxSamples = 20
	}
	if cfg.Parse.FetchTimeout == "" {
		cfg.Parse.FetchTimeout = "30s"
	}

	if cfg.Analysis.MaxPause == "" {
		cfg.Analysis.MaxPause = "500ms"
	}
	if cfg.Analysis.MinThroughput == 0 {
		cfg.Analysis.MinThroughput = 95
	}
	if cfg.Analysis.MaxFullGCRate == 0 {
		cfg.Analysis.MaxFullGCRate = 6
	}

	// 6-field cron with seconds
	if cfg.Watch.Cron == "" {
		cfg.Watch.Cron = "*/30 * * * * *"
	}
	if cfg.Watch.MinInterval == "" {
		cfg.Watch.MinInterval = "5s"
	}

	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.Path == "" {
			cfg.Store.Path = "gc-sentinel.db"
		}
	case "postgres":
		if cfg.Store.Host == "" {
			cfg.Store.Host = "127.0.0.1"
		}
		if cfg.Store.Port == 0 {
			cfg.Store.Port = 5432
		}
		if cfg.Store.DBName == "" {
			cfg.Store.DBName = "gc_sentinel"
		}
		if cfg.Store.SSLMode == "" {
			cfg.Store.SSLMode = "disable"
		}
	}

	if cfg.Notifier.Type == "" {
		cfg.Notifier.Type = "console"
	}
	if cfg.Notifier.Retries == 0 {
		cfg.Notifier.Retries = 3
	}
	if cfg.Notifier.RetryDelay == "" {
		cfg.Notifier.RetryDelay = "1s"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Inputs.Resources) == 0 && c.Inputs.Dir == "" {
		errs = append(errs, "inputs.resources or inputs.dir is required")
	}

	validDialects := map[string]bool{
		"": true, "classic": true, "cms": true, "g1": true, "shenandoah": true,
		"jrockit": true, "ibmj9": true, "unified": true,
	}
	if !validDialects[c.Parse.Dialect] {
		errs = append(errs, "parse.dialect must be one of: classic, cms, g1, shenandoah, jrockit, ibmj9, unified")
	}
	if c.Parse.DetectWindow < 0 {
		errs = append(errs, "parse.detect_window must not be negative")
	}
	if _, err := c.Parse.FetchTimeoutParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("parse.fetch_timeout is invalid: %v", err))
	}

	if _, err := c.Analysis.MaxPauseParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("analysis.max_pause is invalid: %v", err))
	}
	if c.Analysis.MinThroughput < 0 || c.Analysis.MinThroughput > 100 {
		errs = append(errs, "analysis.min_throughput must be between 0 and 100")
	}

	if _, err := c.Watch.MinIntervalParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("watch.min_interval is invalid: %v", err))
	}

	validDrivers := map[string]bool{"": true, "sqlite": true, "postgres": true}
	if !validDrivers[c.Store.Driver] {
		errs = append(errs, "store.driver must be one of: sqlite, postgres")
	}

	validNotifierTypes := map[string]bool{"webhook": true, "console": true, "none": true}
	if !validNotifierTypes[c.Notifier.Type] {
		errs = append(errs, "notifier.type must be one of: webhook, console, none")
	}
	if c.Notifier.Type == "webhook" && c.Notifier.WebhookURL == "" {
		errs = append(errs, "notifier.webhook_url is required when type is 'webhook'")
	}
	if _, err := c.Notifier.RetryDelayParsed(); err != nil {
		errs = append(errs, fmt.Sprintf("notifier.retry_delay is invalid: %v", err))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, "logging.format must be one of: text, json")
	}
	validOutputs := map[string]bool{"stderr": true, "stdout": true, "file": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		errs = append(errs, "logging.output must be one of: stderr, stdout, file, both")
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.File == "" {
		errs = append(errs, "logging.file is required when output writes to a file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
