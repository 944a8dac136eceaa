package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"punchsync/internal/config"
	"punchsync/internal/logging"
	"punchsync/internal/preflight"
	"punchsync/internal/scheduler"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
)

// Daemon runs the scheduler and API and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	orch      *syncer.Orchestrator
	scheduler *scheduler.Scheduler
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Sync         syncer.Status
	SyncError    string
	Jobs         []scheduler.JobStatus
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, orch *syncer.Orchestrator, sched *scheduler.Scheduler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || orch == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     st,
		orch:      orch,
		scheduler: sched,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// scheduler and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another punchsync daemon instance is already running")
	}

	d.logPreflight(ctx)

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.scheduler.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.scheduler.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("punchsync daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Int("devices", d.orch.Registry().Len()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("punchsync daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound API address, or "" when the API is disabled
// or not yet listening.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Sync runs a sync outside the schedule.
func (d *Daemon) Sync(ctx context.Context, opts syncer.Options) (syncer.Report, error) {
	return d.orch.SyncAll(ctx, opts)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Jobs:         d.scheduler.Status(),
	}
	syncStatus, err := d.orch.GetSyncStatus(ctx)
	if err != nil {
		status.SyncError = err.Error()
	}
	status.Sync = syncStatus
	return status
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			d.logger.Info("preflight check passed",
				logging.String(logging.FieldEventType, "preflight_passed"),
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run punchsync config validate and check the device gateway"),
			logging.String(logging.FieldImpact, "scheduled syncs may fail until this is fixed"),
		)
	}
}
