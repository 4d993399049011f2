package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/b0ase/cardlog/internal/logging"
)

type APIConfig struct {
	Port        int    `yaml:"port"`
	Bind        string `yaml:"bind"`
	CORSOrigin  string `yaml:"cors_origin"`
	MaxLogLimit int    `yaml:"max_log_limit"` // upper bound for ?limit= on list endpoints
}

type DatabaseConfig struct {
	Driver              string        `yaml:"driver"` // "sqlite3" (cgo) or "sqlite" (pure Go)
	Path                string        `yaml:"path"`   // empty = <data_dir>/cardlog.db
	BackupEnabled       bool          `yaml:"backup_enabled"`
	BackupInterval      time.Duration `yaml:"backup_interval"`
	BackupRetentionDays int           `yaml:"backup_retention_days"`
	CleanupDays         int           `yaml:"cleanup_days"` // 0 disables log retention
}

type RateLimitConfig struct {
	Enabled   bool    `yaml:"enabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ReaderConfig struct {
	Path      string `yaml:"path"`       // card reader output file; empty disables the feed
	FromStart bool   `yaml:"from_start"` // replay existing lines instead of only new ones
}

type DashboardConfig struct {
	ServerURL     string        `yaml:"server_url"`
	MaxRows       int           `yaml:"max_rows"`
	HistoryLimit  int           `yaml:"history_limit"`
	ToastDuration time.Duration `yaml:"toast_duration"`
	NotifyFilter  string        `yaml:"notify_filter"`
}

type Config struct {
	DataDir   string            `yaml:"data_dir"`
	API       APIConfig         `yaml:"api"`
	Database  DatabaseConfig    `yaml:"database"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Reader    ReaderConfig      `yaml:"reader"`
	Users     map[string]string `yaml:"users"` // card uid -> display name
	Dashboard DashboardConfig   `yaml:"dashboard"`
	Log       logging.Config    `yaml:"log"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".cardlog"),
		API: APIConfig{
			Port:        5000,
			Bind:        "0.0.0.0",
			CORSOrigin:  "*",
			MaxLogLimit: 1000,
		},
		Database: DatabaseConfig{
			Driver:              "sqlite3",
			BackupEnabled:       true,
			BackupInterval:      24 * time.Hour,
			BackupRetentionDays: 30,
			CleanupDays:         90,
		},
		RateLimit: RateLimitConfig{
			Enabled:   false,
			PerSecond: 10,
			Burst:     20,
		},
		Metrics: MetricsConfig{Enabled: true},
		Users:   map[string]string{},
		Dashboard: DashboardConfig{
			ServerURL:     "http://127.0.0.1:5000",
			MaxRows:       50,
			HistoryLimit:  50,
			ToastDuration: 4 * time.Second,
		},
		Log: logging.Config{
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
		},
	}
}

// DefaultPath is where the binaries look for cardlog.yaml without --config.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cardlog", "cardlog.yaml")
}

// Load reads a YAML config file and merges it with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file: defaults + env overlay
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Reader.Path = expandHome(cfg.Reader.Path)

	cfg.applyEnv()
	return cfg, nil
}

// LoadFromBytes parses YAML config from bytes and merges with defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables on top of config values.
func (c *Config) applyEnv() {
	if v := os.Getenv("CARDLOG_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CARDLOG_HOST"); v != "" {
		c.API.Bind = v
	}
	if v := os.Getenv("CARDLOG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
		}
	}
	if v := os.Getenv("CARDLOG_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CARDLOG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CARDLOG_SERVER_URL"); v != "" {
		c.Dashboard.ServerURL = v
	}
	if v := os.Getenv("CARDLOG_RATE_LIMIT"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.RateLimit.Enabled = on
		}
	}
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.DataDir, "cardlog.db")
}

// BackupDir is where maintenance backups are written.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
}

func expandHome(p string) string {
	if len(p) > 0 && p[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, p[1:])
	}
	return p
}
