package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"punchsync/internal/config"
	"punchsync/internal/daemon"
	"punchsync/internal/logging"
	"punchsync/internal/notifications"
	"punchsync/internal/scheduler"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
	"punchsync/internal/terminal"
	"punchsync/internal/terminal/bridge"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// Logger overrides the config-derived logger.
	Logger *slog.Logger
	// Driver overrides the configured terminal driver.
	Driver terminal.Driver
	// Ready, when set, receives the started daemon before Run blocks.
	Ready func(*daemon.Daemon)
}

// Run starts the punchsync daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	logConfigSnapshot(logger, cfg)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open attendance store", logging.Error(err))
		return err
	}

	driver := opts.Driver
	if driver == nil {
		driver = bridge.NewFromConfig(cfg)
	}
	orch := syncer.New(cfg, st, driver, notifications.NewService(cfg), logger)
	sched, err := scheduler.New(cfg, orch, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create scheduler: %w", err)
	}

	d, err := daemon.New(cfg, st, orch, sched, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file and paths.api_bind"),
		)
		return err
	}
	if opts.Ready != nil {
		opts.Ready(d)
	}

	<-signalCtx.Done()
	logger.Info("punchsync daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "punchsync.pid")
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", cfg.Paths.APIToken != ""),
		logging.String("driver", cfg.Devices.Driver),
		logging.String("bridge_url", cfg.Devices.BridgeURL),
		logging.String("timezone", cfg.Location().String()),
		logging.String("sync_schedule", cfg.Schedule.Sync),
		logging.Int("lookback_days", cfg.Schedule.LookbackDays),
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
	)
}
