package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"punchsync/internal/api"
	"punchsync/internal/daemonctl"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the unprocessed backlog, last sync, and recent attendance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *syncer.Orchestrator, _ *store.Store) error {
				status, err := orch.GetSyncStatus(cmd.Context())
				if err != nil {
					return err
				}
				dto := api.FromSyncStatus(status)
				if jsonOut {
					return writeJSON(cmd, dto)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				renderSyncStatus(out, dto, colorize)
				renderDaemonLine(cmd, ctx, colorize)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderSyncStatus(out io.Writer, status api.SyncStatus, colorize bool) {
	for _, line := range renderSectionHeader("Sync", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Devices Configured", statusInfo, strconv.Itoa(status.DevicesConfigured), colorize))

	backlogKind := statusOK
	if status.UnprocessedCount > 0 {
		backlogKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Unprocessed Punches", backlogKind, strconv.Itoa(status.UnprocessedCount), colorize))

	if status.LastRun == nil {
		fmt.Fprintln(out, renderStatusLine("Last Sync", statusWarn, "never", colorize))
	} else {
		run := status.LastRun
		kind := statusOK
		if run.DevicesFailed > 0 {
			kind = statusWarn
		}
		msg := fmt.Sprintf("%s (%d synced, %d failed, %d inserted)",
			humanTime(status.LastSyncTime), run.DevicesSynced, run.DevicesFailed, run.TotalInserted)
		fmt.Fprintln(out, renderStatusLine("Last Sync", kind, msg, colorize))
		for _, d := range run.Devices {
			if d.Error != "" {
				fmt.Fprintln(out, renderStatusLine(d.Device, statusError, d.Error, colorize))
			}
		}
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Recent Attendance", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.RecentAttendance) == 0 {
		fmt.Fprintln(out, "No attendance recorded yet")
		return
	}
	fmt.Fprint(out, renderAttendanceTable(status.RecentAttendance, colorize))
}

func renderAttendanceTable(rows []api.AttendanceRow, colorize bool) string {
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			r.Date,
			r.EmployeeCode,
			colorizeCell(titleLabel(r.Status), attendanceStatusKind(r.Status), colorize),
			clockOnly(r.CheckIn),
			clockOnly(r.CheckOut),
			r.WorkHours,
			strconv.Itoa(r.LateMinutes),
			r.OvertimeHours,
		})
	}
	return renderTable(
		[]string{"Date", "Employee", "Status", "In", "Out", "Hours", "Late", "Overtime"},
		table,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

// clockOnly renders an API timestamp as local HH:MM.
func clockOnly(value string) string {
	if value == "" {
		return "-"
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("15:04")
}

func humanTime(value string) string {
	if value == "" {
		return "unknown"
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

// renderDaemonLine reports whether a daemon answers on the configured API
// address. It never fails the command.
func renderDaemonLine(cmd *cobra.Command, ctx *commandContext, colorize bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	client, err := ctx.daemonClient()
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "API disabled (paths.api_bind is empty)", colorize))
		return
	}
	status, err := client.Status(cmd.Context())
	switch {
	case errors.Is(err, daemonctl.ErrDaemonNotRunning):
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
		return
	case err != nil:
		fmt.Fprintln(out, renderStatusLine("Daemon", statusError, err.Error(), colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	for _, job := range status.Jobs {
		msg := "next " + humanTime(job.Next)
		kind := statusInfo
		if job.LastError != "" {
			msg += "; last error: " + job.LastError
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine(titleLabel(job.Name), kind, msg, colorize))
	}
}
