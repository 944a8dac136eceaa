package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"punchsync/internal/logging"
	"punchsync/internal/punch"
	"punchsync/internal/registry"
	"punchsync/internal/services"
	"punchsync/internal/store"
	"punchsync/internal/terminal"
)

// Stats summarizes one device run.
type Stats struct {
	Device            string         `json:"device"`
	Address           string         `json:"address"`
	Fetched           int            `json:"fetched"`
	Inserted          int            `json:"inserted"`
	Duplicates        int            `json:"duplicates"`
	Invalid           int            `json:"invalid"`
	UnmatchedEmployee int            `json:"unmatched_employee"`
	Errors            int            `json:"errors"`
	InvalidReasons    map[string]int `json:"invalid_reasons,omitempty"`
	Error             string         `json:"error,omitempty"`
	ErrorKind         string         `json:"error_kind,omitempty"`
	Duration          time.Duration  `json:"duration_ns"`
}

// Failed reports whether the device could not be read at all.
func (s Stats) Failed() bool { return s.Error != "" }

// Store is the persistence the pipeline needs.
type Store interface {
	punch.DayLookup
	EmployeeByDeviceUserID(ctx context.Context, deviceUserID string) (*store.Employee, error)
	InsertPunch(ctx context.Context, p store.NewPunch) (bool, error)
}

// Pipeline ingests terminal buffers.
type Pipeline struct {
	store    Store
	driver   terminal.Driver
	opts     terminal.Options
	resolver *punch.Resolver
	now      func() time.Time
	logger   *slog.Logger
}

// New returns a pipeline that opens terminals through driver with opts and
// writes to st. Calendar dates and naive timestamps use opts.Location.
func New(st Store, driver terminal.Driver, opts terminal.Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Pipeline{
		store:    st,
		driver:   driver,
		opts:     opts,
		resolver: punch.NewResolver(st, opts.Location),
		now:      time.Now,
		logger:   logging.NewComponentLogger(opts.Logger, "ingest"),
	}
}

// SetClock replaces the clock used as "now" for validation.
func (p *Pipeline) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeDuplicate
	outcomeInvalid
	outcomeUnmatched
	outcomeError
)

// Run ingests device's buffer restricted to [since, until]. A device that
// cannot be reached yields zero counters and a device-level error.
func (p *Pipeline) Run(ctx context.Context, device registry.Device, since, until *time.Time) Stats {
	started := time.Now()
	stats := Stats{Device: device.Name, Address: device.Address()}
	ctx = services.WithDevice(ctx, device.Name)
	logger := logging.WithContext(ctx, p.logger)

	client := terminal.NewClient(p.driver, device.Name, device.Host, device.Port, p.opts)
	defer client.Disconnect(ctx)

	if err := client.Connect(ctx, true); err != nil {
		return p.fail(logger, stats, started, err)
	}

	records, err := client.Punches(ctx, since, until)
	// Release the terminal before touching the store; swipes are blocked
	// while it is disabled.
	client.Disconnect(ctx)
	if err != nil {
		return p.fail(logger, stats, started, err)
	}
	stats.Fetched = len(records)

	now := p.now()
	for _, rec := range records {
		if ctx.Err() != nil {
			stats.Errors += len(records) - stats.processed()
			break
		}
		result, reason, err := p.ingestRecord(ctx, device.Name, rec, now)
		switch result {
		case outcomeInserted:
			stats.Inserted++
		case outcomeDuplicate:
			stats.Duplicates++
		case outcomeInvalid:
			stats.Invalid++
			if stats.InvalidReasons == nil {
				stats.InvalidReasons = map[string]int{}
			}
			stats.InvalidReasons[string(reason)]++
			logger.Debug("record rejected",
				logging.String(logging.FieldDeviceUserID, rec.UserID),
				logging.String("reason", string(reason)),
			)
		case outcomeUnmatched:
			stats.UnmatchedEmployee++
			logger.Debug("record has no employee mapping", logging.String(logging.FieldDeviceUserID, rec.UserID))
		case outcomeError:
			stats.Errors++
			logger.Warn("record ingestion failed",
				logging.String(logging.FieldDeviceUserID, rec.UserID),
				logging.Error(err),
			)
		}
	}

	stats.Duration = time.Since(started)
	logger.Info("device ingestion complete",
		logging.String(logging.FieldEventType, "device_ingested"),
		logging.Int("fetched", stats.Fetched),
		logging.Int("inserted", stats.Inserted),
		logging.Int("duplicates", stats.Duplicates),
		logging.Int("invalid", stats.Invalid),
		logging.Int("unmatched_employee", stats.UnmatchedEmployee),
		logging.Int("errors", stats.Errors),
		logging.Duration("duration", stats.Duration),
	)
	if stats.UnmatchedEmployee > 0 {
		logging.WarnWithContext(logger, "terminal users without employee mapping", "unmatched_users",
			logging.Int("count", stats.UnmatchedEmployee),
			logging.String(logging.FieldErrorHint, "set device_user_id on the employees or remove stale terminal users"),
			logging.String(logging.FieldImpact, "their punches are not recorded"),
		)
	}
	return stats
}

func (s Stats) processed() int {
	return s.Inserted + s.Duplicates + s.Invalid + s.UnmatchedEmployee + s.Errors
}

func (p *Pipeline) fail(logger *slog.Logger, stats Stats, started time.Time, err error) Stats {
	stats.Error = err.Error()
	stats.ErrorKind = services.Kind(err)
	stats.Duration = time.Since(started)
	logging.ErrorWithContext(logger, "device ingestion failed", "device_failed",
		logging.Error(err),
		logging.String("error_kind", stats.ErrorKind),
	)
	return stats
}

func (p *Pipeline) ingestRecord(ctx context.Context, deviceID string, rec terminal.Record, now time.Time) (outcome, punch.Reason, error) {
	emp, err := p.store.EmployeeByDeviceUserID(ctx, rec.UserID)
	if err != nil {
		return outcomeError, "", err
	}
	if emp == nil {
		return outcomeUnmatched, "", nil
	}

	ts := terminal.Anchor(rec, p.opts.Location)
	if err := punch.Validate(ts, punch.Employee{Code: emp.Code, Active: emp.Active}, now); err != nil {
		var invalid *punch.InvalidError
		if errors.As(err, &invalid) {
			return outcomeInvalid, invalid.Reason, nil
		}
		return outcomeError, "", err
	}

	kind, err := p.resolver.Resolve(ctx, rec, emp.Code, ts)
	if err != nil {
		return outcomeError, "", err
	}

	inserted, err := p.store.InsertPunch(ctx, store.NewPunch{
		EmployeeCode: emp.Code,
		PunchedAt:    ts,
		DeviceID:     deviceID,
		Kind:         kind,
	})
	if err != nil {
		return outcomeError, "", err
	}
	if !inserted {
		return outcomeDuplicate, "", nil
	}
	return outcomeInserted, "", nil
}
