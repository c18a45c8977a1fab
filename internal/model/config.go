package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the local SQLite mirror.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SyncConfig controls the background reconciliation passes.
type SyncConfig struct {
	// IntervalSec is the minimum spacing between non-forced passes.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// MaxResults bounds how many recent remote messages a pass fetches.
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`

	// DraftMaxResults bounds how many remote drafts a pass fetches.
	DraftMaxResults int `mapstructure:"draft_max_results" yaml:"draft_max_results"`

	// TimeoutSec bounds every individual remote call.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Interval returns IntervalSec as a duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// Timeout returns TimeoutSec as a duration.
func (c SyncConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// GmailConfig holds the mailbox provider settings.
type GmailConfig struct {
	// CredentialsFile is the OAuth client JSON downloaded from Google Cloud.
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// TokenKey is the keyring entry holding the OAuth token.
	TokenKey string `mapstructure:"token_key" yaml:"token_key"`

	// SelfAddress overrides the account address used to detect sent mail.
	SelfAddress string `mapstructure:"self_address" yaml:"self_address"`
}

// AIConfig holds settings for the message classifier.
type AIConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Model      string `mapstructure:"model" yaml:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// Timeout returns TimeoutSec as a duration.
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// MetricsConfig controls the Prometheus endpoint served by `serve`.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Gmail    GmailConfig    `mapstructure:"gmail" yaml:"gmail"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// configDir returns ~/.config/mailtriage, or "." when the home
// directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "mailtriage")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailtriage/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{
			Path: filepath.Join(configDir(), "mail.db"),
		},
		Sync: SyncConfig{
			IntervalSec:     20,
			MaxResults:      25,
			DraftMaxResults: 50,
			TimeoutSec:      25,
		},
		Gmail: GmailConfig{
			CredentialsFile: filepath.Join(configDir(), "credentials.json"),
			TokenKey:        "gmail-token",
		},
		AI: AIConfig{
			BaseURL:    "https://router.huggingface.co/v1",
			Model:      "Qwen/Qwen2.5-14B-Instruct",
			TimeoutSec: 25,
			BatchSize:  10,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// setDefaults mirrors DefaultAppConfig into v so missing keys resolve.
func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("sync.interval_sec", d.Sync.IntervalSec)
	v.SetDefault("sync.max_results", d.Sync.MaxResults)
	v.SetDefault("sync.draft_max_results", d.Sync.DraftMaxResults)
	v.SetDefault("sync.timeout_sec", d.Sync.TimeoutSec)
	v.SetDefault("gmail.credentials_file", d.Gmail.CredentialsFile)
	v.SetDefault("gmail.token_key", d.Gmail.TokenKey)
	v.SetDefault("gmail.self_address", "")
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.timeout_sec", d.AI.TimeoutSec)
	v.SetDefault("ai.batch_size", d.AI.BatchSize)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", false)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// bindEnv wires MAILTRIAGE_* variables plus the legacy names used by
// existing deployments.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("mailtriage")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	legacy := map[string][]string{
		"sync.interval_sec":      {"GMAIL_SYNC_INTERVAL_SECONDS"},
		"sync.max_results":       {"GMAIL_SYNC_MAX_RESULTS"},
		"gmail.credentials_file": {"GMAIL_CREDENTIALS_FILE"},
		"ai.api_key":             {"QWEN_API_KEY", "HF_TOKEN"},
		"ai.timeout_sec":         {"QWEN_TIMEOUT_SECONDS"},
		"ai.base_url":            {"QWEN_API_BASE_URL"},
		"ai.model":               {"QWEN_MODEL"},
	}
	for key, envs := range legacy {
		prefixed := "MAILTRIAGE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, envs...)...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	return nil
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file is not an error: defaults and environment overrides apply.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.normalize()

	return cfg, nil
}

// normalize replaces non-positive numeric settings with defaults.
func (c *AppConfig) normalize() {
	d := DefaultAppConfig()
	if c.Sync.IntervalSec <= 0 {
		c.Sync.IntervalSec = d.Sync.IntervalSec
	}
	if c.Sync.MaxResults <= 0 {
		c.Sync.MaxResults = d.Sync.MaxResults
	}
	if c.Sync.DraftMaxResults <= 0 {
		c.Sync.DraftMaxResults = d.Sync.DraftMaxResults
	}
	if c.Sync.TimeoutSec <= 0 {
		c.Sync.TimeoutSec = d.Sync.TimeoutSec
	}
	if c.AI.TimeoutSec <= 0 {
		c.AI.TimeoutSec = d.AI.TimeoutSec
	}
	if c.AI.BatchSize <= 0 {
		c.AI.BatchSize = d.AI.BatchSize
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("sync", cfg.Sync)
	v.Set("gmail", cfg.Gmail)
	v.Set("ai", cfg.AI)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
