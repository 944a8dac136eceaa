package syncer

import (
	"log/slog"
	"time"

	"punchsync/internal/attendance"
	"punchsync/internal/config"
	"punchsync/internal/ingest"
	"punchsync/internal/logging"
	"punchsync/internal/notifications"
	"punchsync/internal/registry"
	"punchsync/internal/store"
	"punchsync/internal/terminal"
)

const defaultConcurrency = 4

// Orchestrator coordinates device ingestion and aggregation.
type Orchestrator struct {
	registry    *registry.Registry
	store       *store.Store
	driver      terminal.Driver
	opts        terminal.Options
	pipeline    *ingest.Pipeline
	aggregator  *attendance.Aggregator
	notifier    notifications.Service
	concurrency int
	recentLimit int
	defaultPort int
	now         func() time.Time
	logger      *slog.Logger
}

// New wires an orchestrator from configuration. The device list is parsed
// once here.
func New(cfg *config.Config, st *store.Store, driver terminal.Driver, notifier notifications.Service, logger *slog.Logger) *Orchestrator {
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	opts := terminal.OptionsFromConfig(cfg, logger)
	o := &Orchestrator{
		registry:    registry.FromConfig(cfg, logger),
		store:       st,
		driver:      driver,
		opts:        opts,
		pipeline:    ingest.New(st, driver, opts),
		aggregator:  attendance.New(st, logger),
		notifier:    notifier,
		concurrency: defaultConcurrency,
		recentLimit: 10,
		defaultPort: registry.DefaultPort,
		now:         time.Now,
		logger:      logging.NewComponentLogger(logger, "syncer"),
	}
	if cfg != nil {
		if cfg.Devices.Concurrency > 0 {
			o.concurrency = cfg.Devices.Concurrency
		}
		if cfg.Devices.DefaultPort > 0 {
			o.defaultPort = cfg.Devices.DefaultPort
		}
		if cfg.Attendance.RecentLimit > 0 {
			o.recentLimit = cfg.Attendance.RecentLimit
		}
	}
	return o
}

// SetClock replaces the clock used for run timestamps, validation, and
// processed_at stamps.
func (o *Orchestrator) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	o.now = now
	o.pipeline.SetClock(now)
	o.aggregator.SetClock(now)
}

// Aggregator exposes the attendance aggregator sharing this store.
func (o *Orchestrator) Aggregator() *attendance.Aggregator { return o.aggregator }

// Notifier returns the notification sink.
func (o *Orchestrator) Notifier() notifications.Service { return o.notifier }

// Registry returns the configured devices.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// ListConfiguredDevices returns the devices in configured order.
func (o *Orchestrator) ListConfiguredDevices() []registry.Device {
	return o.registry.Devices()
}
