package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Devices contains the terminal list and the connection policy used for
// every terminal.
type Devices struct {
	// List uses the "name|host:port,name|host:port" format. Name and port are optional.
	List                  string `toml:"list"`
	DefaultPort           int    `toml:"default_port"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout"`
	MaxRetries            int    `toml:"max_retries"`
	RetryDelaySeconds     int    `toml:"retry_delay"`
	Concurrency           int    `toml:"concurrency"`
	Driver                string `toml:"driver"`
	BridgeURL             string `toml:"bridge_url"`
	BridgeToken           string `toml:"bridge_token"`
}

// Attendance contains settings for daily aggregation.
type Attendance struct {
	Timezone    string `toml:"timezone"`
	RecentLimit int    `toml:"recent_limit"`
}

// Schedule contains cron specs for the daemon jobs.
type Schedule struct {
	Sync          string `toml:"sync"`
	LookbackDays  int    `toml:"lookback_days"`
	AutoAggregate bool   `toml:"auto_aggregate"`
	Backfill      string `toml:"backfill"`
	LateNotices   string `toml:"late_notices"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	LateArrival    bool   `toml:"late_arrival"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Config encapsulates all configuration values for punchsync.
//
// Configuration sections by subsystem:
//   - Paths: database/lock directory, log directory, API bind address
//   - Devices: terminal list, retry policy, driver selection
//   - Attendance: time zone used for calendar dates and shift arithmetic
//   - Schedule: daemon cron specs and sync window
//   - Notifications: ntfy late-arrival notices
//   - Logging: log format, level, and file rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Devices       Devices       `toml:"devices"`
	Attendance    Attendance    `toml:"attendance"`
	Schedule      Schedule      `toml:"schedule"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`

	location *time.Location
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/punchsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	// A missing .env is the common case; real values always win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", false, fmt.Errorf("load .env: %w", err)
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("punchsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for CLI and daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "punchsync.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "punchsync.lock")
}

// LogPath returns the rotating log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "punchsync.log")
}

// Location returns the attendance time zone. Calendar dates and shift
// boundaries are evaluated in this zone.
func (c *Config) Location() *time.Location {
	if c == nil {
		return time.Local
	}
	if c.location != nil {
		return c.location
	}
	if loc, err := loadLocation(c.Attendance.Timezone); err == nil {
		return loc
	}
	return time.Local
}

// ConnectTimeout returns the per-attempt terminal connection timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Devices.ConnectTimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed delay between terminal connection attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Devices.RetryDelaySeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
