package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDevices()
	if err := c.normalizeAttendance(); err != nil {
		return err
	}
	c.normalizeSchedule()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("PUNCHSYNC_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDevices() {
	c.Devices.List = strings.TrimSpace(c.Devices.List)
	if c.Devices.List == "" {
		if value, ok := os.LookupEnv("PUNCHSYNC_DEVICES"); ok {
			c.Devices.List = strings.TrimSpace(value)
		}
	}
	if c.Devices.DefaultPort == 0 {
		c.Devices.DefaultPort = defaultDevicePort
	}
	if c.Devices.Concurrency == 0 {
		c.Devices.Concurrency = defaultDeviceConcurrency
	}
	c.Devices.Driver = strings.ToLower(strings.TrimSpace(c.Devices.Driver))
	if c.Devices.Driver == "" {
		c.Devices.Driver = defaultDriver
	}
	c.Devices.BridgeURL = strings.TrimRight(strings.TrimSpace(c.Devices.BridgeURL), "/")
	c.Devices.BridgeToken = strings.TrimSpace(c.Devices.BridgeToken)
	if c.Devices.BridgeToken == "" {
		if value, ok := os.LookupEnv("PUNCHSYNC_BRIDGE_TOKEN"); ok {
			c.Devices.BridgeToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeAttendance() error {
	c.Attendance.Timezone = strings.TrimSpace(c.Attendance.Timezone)
	if c.Attendance.Timezone == "" {
		c.Attendance.Timezone = defaultTimezone
	}
	loc, err := loadLocation(c.Attendance.Timezone)
	if err != nil {
		return fmt.Errorf("attendance.timezone: %w", err)
	}
	c.location = loc
	if c.Attendance.RecentLimit <= 0 {
		c.Attendance.RecentLimit = defaultRecentLimit
	}
	return nil
}

func (c *Config) normalizeSchedule() {
	c.Schedule.Sync = strings.TrimSpace(c.Schedule.Sync)
	c.Schedule.Backfill = strings.TrimSpace(c.Schedule.Backfill)
	c.Schedule.LateNotices = strings.TrimSpace(c.Schedule.LateNotices)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("PUNCHSYNC_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}
