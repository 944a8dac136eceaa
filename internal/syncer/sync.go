package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"punchsync/internal/attendance"
	"punchsync/internal/ingest"
	"punchsync/internal/logging"
	"punchsync/internal/notifications"
	"punchsync/internal/registry"
	"punchsync/internal/services"
	"punchsync/internal/store"
)

// Options selects the sync window and whether to aggregate afterwards.
// Device, when set, limits the run to one configured device by name or
// host:port.
type Options struct {
	Device        string
	Since         *time.Time
	Until         *time.Time
	AutoAggregate bool
}

// Report is the consolidated result of SyncAll.
type Report struct {
	RunID                  string            `json:"run_id"`
	StartedAt              time.Time         `json:"started_at"`
	FinishedAt             time.Time         `json:"finished_at"`
	DevicesSynced          int               `json:"devices_synced"`
	DevicesFailed          int               `json:"devices_failed"`
	TotalFetched           int               `json:"total_fetched"`
	TotalInserted          int               `json:"total_inserted"`
	TotalDuplicates        int               `json:"total_duplicates"`
	TotalInvalid           int               `json:"total_invalid"`
	TotalUnmatchedEmployee int               `json:"total_unmatched_employee"`
	TotalErrors            int               `json:"total_errors"`
	Devices                []ingest.Stats    `json:"devices"`
	Aggregation            *attendance.Stats `json:"aggregation,omitempty"`
	AggregationError       string            `json:"aggregation_error,omitempty"`
}

func (r *Report) add(stats ingest.Stats) {
	r.Devices = append(r.Devices, stats)
	if stats.Failed() {
		r.DevicesFailed++
		return
	}
	r.DevicesSynced++
	r.TotalFetched += stats.Fetched
	r.TotalInserted += stats.Inserted
	r.TotalDuplicates += stats.Duplicates
	r.TotalInvalid += stats.Invalid
	r.TotalUnmatchedEmployee += stats.UnmatchedEmployee
	r.TotalErrors += stats.Errors
}

// Window returns the range covering the last days days ending at now. days
// <= 0 means no lower bound.
func Window(days int, now time.Time) (*time.Time, *time.Time) {
	until := now
	if days <= 0 {
		return nil, &until
	}
	since := now.AddDate(0, 0, -days)
	return &since, &until
}

// SelectDevices returns the devices a run with opts covers. An unknown
// device name wraps services.ErrNotFound.
func (o *Orchestrator) SelectDevices(opts Options) ([]registry.Device, error) {
	if opts.Device == "" {
		return o.registry.Devices(), nil
	}
	device, ok := o.registry.Lookup(opts.Device)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "syncer", "select devices",
			fmt.Sprintf("device %q is not configured", opts.Device), nil)
	}
	return []registry.Device{device}, nil
}

// SyncAll ingests every configured device. Devices run concurrently up to
// the configured limit and never affect each other; the report lists them in
// configured order. With AutoAggregate, aggregation runs when at least one
// punch was inserted. The returned error is non-nil only when opts names an
// unknown device or the run could not be recorded.
func (o *Orchestrator) SyncAll(ctx context.Context, opts Options) (Report, error) {
	report := Report{RunID: uuid.NewString(), StartedAt: o.now()}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, o.logger)

	devices, err := o.SelectDevices(opts)
	if err != nil {
		return report, err
	}
	if len(devices) == 0 {
		logging.WarnWithContext(logger, "no devices configured", "no_devices",
			logging.String(logging.FieldErrorHint, "set devices.list in the config or PUNCHSYNC_DEVICES"),
			logging.String(logging.FieldImpact, "nothing was synced"),
		)
		report.FinishedAt = o.now()
		report.Devices = []ingest.Stats{}
		return report, nil
	}

	logger.Info("sync started",
		logging.String(logging.FieldEventType, "sync_started"),
		logging.Int("devices", len(devices)),
		logging.Int("concurrency", o.concurrency),
	)

	results := make([]ingest.Stats, len(devices))
	var group errgroup.Group
	group.SetLimit(o.concurrency)
	for i, device := range devices {
		group.Go(func() error {
			results[i] = o.pipeline.Run(ctx, device, opts.Since, opts.Until)
			return nil
		})
	}
	_ = group.Wait()

	for _, stats := range results {
		report.add(stats)
	}

	if opts.AutoAggregate && report.TotalInserted > 0 {
		aggStats, err := o.aggregator.Run(ctx, attendance.Filter{})
		if err != nil {
			report.AggregationError = err.Error()
			logging.ErrorWithContext(logger, "aggregation after sync failed", "aggregation_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run punchsync aggregate once the store is healthy"),
			)
		}
		report.Aggregation = &aggStats
	}
	report.FinishedAt = o.now()

	o.notifyFailures(ctx, report)

	logger.Info("sync complete",
		logging.String(logging.FieldEventType, "sync_complete"),
		logging.Int("devices_synced", report.DevicesSynced),
		logging.Int("devices_failed", report.DevicesFailed),
		logging.Int("inserted", report.TotalInserted),
		logging.Int("duplicates", report.TotalDuplicates),
		logging.Int("invalid", report.TotalInvalid),
		logging.Int("unmatched_employee", report.TotalUnmatchedEmployee),
		logging.Int("errors", report.TotalErrors),
		logging.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if err := o.record(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

func (o *Orchestrator) notifyFailures(ctx context.Context, report Report) {
	if report.DevicesFailed == 0 {
		return
	}
	failures := make([]notifications.DeviceFailure, 0, report.DevicesFailed)
	for _, stats := range report.Devices {
		if stats.Failed() {
			failures = append(failures, notifications.DeviceFailure{Device: stats.Device, Error: stats.Error})
		}
	}
	if err := o.notifier.NotifyDeviceFailures(ctx, failures); err != nil {
		o.logger.Warn("device failure notice not sent", logging.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, report Report) error {
	devices, err := json.Marshal(report.Devices)
	if err != nil {
		return fmt.Errorf("encode sync report: %w", err)
	}
	run := store.SyncRun{
		ID:              report.RunID,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		DevicesSynced:   report.DevicesSynced,
		DevicesFailed:   report.DevicesFailed,
		TotalFetched:    report.TotalFetched,
		TotalInserted:   report.TotalInserted,
		TotalDuplicates: report.TotalDuplicates,
		TotalInvalid:    report.TotalInvalid,
		TotalUnmatched:  report.TotalUnmatchedEmployee,
		TotalErrors:     report.TotalErrors,
		ReportJSON:      string(devices),
	}
	// Record even when the caller has gone away; the devices were touched.
	if err := o.store.RecordSyncRun(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}
