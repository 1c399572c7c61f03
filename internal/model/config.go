package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `mapstructure:"format" yaml:"format"`
}

// SchedulerConfig controls the daily materialization trigger.
type SchedulerConfig struct {
	// DailyAt is the UTC wall-clock time (HH:MM) of the daily run.
	DailyAt string `mapstructure:"daily_at" yaml:"daily_at"`

	// Concurrency caps how many users are materialized in parallel.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// MetricsConfig holds the listen address of the Prometheus endpoint.
// An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// TasksConfig holds list behaviour settings.
type TasksConfig struct {
	// MaxDepth is the number of nesting levels allowed, root included.
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
}

// IdentityConfig names the user the CLI acts as.
type IdentityConfig struct {
	UserID int64 `mapstructure:"user_id" yaml:"user_id"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Tasks     TasksConfig     `mapstructure:"tasks" yaml:"tasks"`
	Identity  IdentityConfig  `mapstructure:"identity" yaml:"identity"`
}

// EnvPrefix is prepended to every environment override, so
// CADENCE_DATABASE_PATH sets database.path.
const EnvPrefix = "CADENCE"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/cadence/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "cadence", "config.yaml")
}

// DefaultDatabasePath returns ~/.local/share/cadence/cadence.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cadence.db"
	}
	return filepath.Join(home, ".local", "share", "cadence", "cadence.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("scheduler.daily_at", "00:05")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("metrics.addr", ":9464")
	v.SetDefault("tasks.max_depth", 3)
	v.SetDefault("identity.user_id", 1)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file yields the defaults. Environment variables override both.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Scheduler.Concurrency < 1 {
		cfg.Scheduler.Concurrency = 1
	}
	if cfg.Tasks.MaxDepth < 1 {
		cfg.Tasks.MaxDepth = 1
	}

	return cfg, nil
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
	v.Set("log", cfg.Log)
	v.Set("scheduler", cfg.Scheduler)
	v.Set("metrics", cfg.Metrics)
	v.Set("tasks", cfg.Tasks)
	v.Set("identity", cfg.Identity)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
