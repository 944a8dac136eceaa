package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"punchsync/internal/config"
	"punchsync/internal/daemonctl"
	"punchsync/internal/logging"
	"punchsync/internal/notifications"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
	"punchsync/internal/terminal"
	"punchsync/internal/terminal/bridge"
)

type commandContext struct {
	configFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// driver, logger, and notifier replace the config-derived ones when set.
	driver   terminal.Driver
	logger   *slog.Logger
	notifier notifications.Service
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) commandLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	logger, err := logging.NewFromConfig(c.configValue())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

func (c *commandContext) terminalDriver() terminal.Driver {
	if c.driver != nil {
		return c.driver
	}
	return bridge.NewFromConfig(c.configValue())
}

func (c *commandContext) notificationService() notifications.Service {
	if c.notifier != nil {
		return c.notifier
	}
	return notifications.NewService(c.configValue())
}

// withStore opens the database for the duration of fn.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return fn(st)
}

// withOrchestrator opens the database and wires an orchestrator over it for
// the duration of fn.
func (c *commandContext) withOrchestrator(fn func(*syncer.Orchestrator, *store.Store) error) error {
	logger, err := c.commandLogger()
	if err != nil {
		return err
	}
	return c.withStore(func(st *store.Store) error {
		orch := syncer.New(c.configValue(), st, c.terminalDriver(), c.notificationService(), logger)
		return fn(orch, st)
	})
}

func (c *commandContext) daemonClient() (*daemonctl.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return daemonctl.FromConfig(cfg)
}

func wrapDaemonError(err error) error {
	if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		return fmt.Errorf("%w; start it with `punchsync daemon start`", err)
	}
	return err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
