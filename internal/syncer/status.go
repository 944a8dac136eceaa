package syncer

import (
	"context"
	"fmt"
	"time"

	"punchsync/internal/store"
)

// Status is a lightweight view of sync health.
type Status struct {
	UnprocessedCount  int                 `json:"unprocessed_count"`
	LastSyncTime      *time.Time          `json:"last_sync_time"`
	LastRun           *store.SyncRun      `json:"last_run,omitempty"`
	DevicesConfigured int                 `json:"devices_configured"`
	RecentAttendance  []*store.Attendance `json:"recent_attendance"`
}

// GetSyncStatus reports the unprocessed backlog, the last recorded run, and
// the newest attendance rows.
func (o *Orchestrator) GetSyncStatus(ctx context.Context) (Status, error) {
	status := Status{DevicesConfigured: o.registry.Len()}

	count, err := o.store.CountUnprocessed(ctx)
	if err != nil {
		return status, fmt.Errorf("sync status: %w", err)
	}
	status.UnprocessedCount = count

	last, err := o.store.LastSyncRun(ctx)
	if err != nil {
		return status, fmt.Errorf("sync status: %w", err)
	}
	if last != nil {
		finished := last.FinishedAt
		status.LastSyncTime = &finished
		status.LastRun = last
	}

	recent, err := o.store.RecentAttendance(ctx, o.recentLimit)
	if err != nil {
		return status, fmt.Errorf("sync status: %w", err)
	}
	if recent == nil {
		recent = []*store.Attendance{}
	}
	status.RecentAttendance = recent
	return status, nil
}
