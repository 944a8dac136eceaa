package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"punchsync/internal/attendance"
	"punchsync/internal/config"
	"punchsync/internal/logging"
	"punchsync/internal/syncer"
)

// Job names.
const (
	JobSync        = "sync"
	JobBackfill    = "backfill"
	JobLateNotices = "late_notices"
)

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	Next      time.Time `json:"next,omitzero"`
	LastRun   time.Time `json:"last_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

type job struct {
	name    string
	spec    string
	entry   cron.EntryID
	run     func(context.Context) error
	lastRun time.Time
	lastErr error
	runs    int
}

// Scheduler owns the cron runner and the job bookkeeping.
type Scheduler struct {
	orch          *syncer.Orchestrator
	cron          *cron.Cron
	lookbackDays  int
	autoAggregate bool
	logger        *slog.Logger
	now           func() time.Time

	mu      sync.Mutex
	jobs    []*job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New registers the configured jobs. An empty spec disables its job; late
// notices also require notifications.late_arrival.
func New(cfg *config.Config, orch *syncer.Orchestrator, logger *slog.Logger) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if orch == nil {
		return nil, errors.New("orchestrator is nil")
	}
	logger = logging.NewComponentLogger(logger, "scheduler")
	adapter := cronLogger{logger: logger}
	s := &Scheduler{
		orch:          orch,
		lookbackDays:  cfg.Schedule.LookbackDays,
		autoAggregate: cfg.Schedule.AutoAggregate,
		logger:        logger,
		now:           time.Now,
		cron: cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
	}

	specs := []struct {
		name    string
		spec    string
		enabled bool
		run     func(context.Context) error
	}{
		{JobSync, cfg.Schedule.Sync, true, s.syncJob},
		{JobBackfill, cfg.Schedule.Backfill, true, s.backfillJob},
		{JobLateNotices, cfg.Schedule.LateNotices, cfg.Notifications.LateArrival, s.lateNoticesJob},
	}
	for _, spec := range specs {
		if spec.spec == "" || !spec.enabled {
			continue
		}
		j := &job{name: spec.name, spec: spec.spec, run: spec.run}
		id, err := s.cron.AddFunc(spec.spec, func() { s.execute(j) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", spec.name, err)
		}
		j.entry = id
		s.jobs = append(s.jobs, j)
	}
	return s, nil
}

// SetClock replaces the clock used for the sync window and job stamps.
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Start begins firing jobs. Jobs run with a context derived from ctx that
// Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	for _, j := range s.jobs {
		s.logger.Info("job scheduled",
			logging.String(logging.FieldEventType, "job_scheduled"),
			logging.String("job", j.name),
			logging.String("spec", j.spec),
			logging.String("next", s.cron.Entry(j.entry).Next.Format(time.RFC3339)),
		)
	}
	return nil
}

// Stop halts the cron runner, cancels running jobs, and waits for them to
// return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	cancel()
	<-done.Done()
}

// Running reports whether Start has been called without Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the registered jobs in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		status := JobStatus{Name: j.name, Spec: j.spec, LastRun: j.lastRun, Runs: j.runs}
		if s.running {
			status.Next = s.cron.Entry(j.entry).Next
		}
		if j.lastErr != nil {
			status.LastError = j.lastErr.Error()
		}
		out = append(out, status)
	}
	return out
}

// RunNow executes the named job immediately, outside the cron runner.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.name == name {
			return s.runJob(ctx, j)
		}
	}
	return fmt.Errorf("job %q is not scheduled", name)
}

func (s *Scheduler) execute(j *job) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_ = s.runJob(ctx, j)
}

func (s *Scheduler) runJob(ctx context.Context, j *job) error {
	started := s.now()
	err := j.run(ctx)

	s.mu.Lock()
	j.lastRun = started
	j.lastErr = err
	j.runs++
	s.mu.Unlock()

	if err != nil {
		logging.ErrorWithContext(s.logger, "scheduled job failed", "job_failed",
			logging.String("job", j.name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run the matching punchsync command to retry by hand"),
		)
	}
	return err
}

func (s *Scheduler) syncJob(ctx context.Context) error {
	since, until := syncer.Window(s.lookbackDays, s.now())
	_, err := s.orch.SyncAll(ctx, syncer.Options{Since: since, Until: until, AutoAggregate: s.autoAggregate})
	return err
}

func (s *Scheduler) backfillJob(ctx context.Context) error {
	agg := s.orch.Aggregator()
	// Punches synced since the last tick must land before absent rows are
	// written for anyone still missing.
	if _, err := agg.Run(ctx, attendance.Filter{Date: agg.Yesterday()}); err != nil {
		return err
	}
	_, err := agg.Backfill(ctx, agg.Yesterday())
	return err
}

func (s *Scheduler) lateNoticesJob(ctx context.Context) error {
	agg := s.orch.Aggregator()
	_, err := agg.NotifyLate(ctx, agg.Today(), s.orch.Notifier())
	return err
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
