package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable for CLI and daemon operation.
func (c *Config) Validate() error {
	if err := c.validateDevices(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDevices() error {
	if err := ensurePositiveMap(map[string]int{
		"devices.connect_timeout": c.Devices.ConnectTimeoutSeconds,
		"devices.max_retries":     c.Devices.MaxRetries,
		"devices.concurrency":     c.Devices.Concurrency,
	}); err != nil {
		return err
	}
	if c.Devices.RetryDelaySeconds < 0 {
		return errors.New("devices.retry_delay must be >= 0")
	}
	if c.Devices.DefaultPort < 1 || c.Devices.DefaultPort > 65535 {
		return fmt.Errorf("devices.default_port must be between 1 and 65535, got %d", c.Devices.DefaultPort)
	}
	switch c.Devices.Driver {
	case DriverBridge:
		if c.Devices.BridgeURL == "" {
			return errors.New("devices.bridge_url must be set when devices.driver is \"bridge\"")
		}
		parsed, err := url.Parse(c.Devices.BridgeURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("devices.bridge_url %q is not an absolute URL", c.Devices.BridgeURL)
		}
	default:
		return fmt.Errorf("devices.driver: unsupported value %q", c.Devices.Driver)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Schedule.LookbackDays < 0 {
		return errors.New("schedule.lookback_days must be >= 0")
	}
	for key, spec := range map[string]string{
		"schedule.sync":         c.Schedule.Sync,
		"schedule.backfill":     c.Schedule.Backfill,
		"schedule.late_notices": c.Schedule.LateNotices,
	} {
		// Empty disables the job.
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("%s: invalid cron spec %q: %w", key, spec, err)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.MaxBackups < 0 {
		return errors.New("logging.max_backups must be >= 0")
	}
	if c.Logging.MaxAgeDays < 0 {
		return errors.New("logging.max_age_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
