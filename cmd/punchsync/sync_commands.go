package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"punchsync/internal/api"
	"punchsync/internal/attendance"
	"punchsync/internal/punch"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		days        int
		since       string
		until       string
		device      string
		noAggregate bool
		jsonOut     bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull punches from the configured terminals",
		Long: "Connects to each configured terminal, stores new punches, and aggregates\n" +
			"daily attendance when anything was inserted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if days < 0 {
				return errors.New("--days must be >= 0")
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Schedule.LookbackDays
			}

			opts := syncer.Options{
				Device:        strings.TrimSpace(device),
				AutoAggregate: cfg.Schedule.AutoAggregate && !noAggregate,
			}
			loc := cfg.Location()
			if since != "" || until != "" {
				var err error
				if opts.Since, err = parseTimeFlag(since, loc, false); err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				if opts.Until, err = parseTimeFlag(until, loc, true); err != nil {
					return fmt.Errorf("--until: %w", err)
				}
				if opts.Since != nil && opts.Until != nil && opts.Until.Before(*opts.Since) {
					return errors.New("--until is before --since")
				}
			} else {
				opts.Since, opts.Until = syncer.Window(days, time.Now())
			}

			return ctx.withOrchestrator(func(orch *syncer.Orchestrator, _ *store.Store) error {
				if len(orch.ListConfiguredDevices()) == 0 {
					return errors.New("no terminals configured; set devices.list or PUNCHSYNC_DEVICES")
				}
				report, err := orch.SyncAll(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.FromReport(report))
				}
				renderSyncReport(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Days of history to fetch (default: schedule.lookback_days, 0 for everything)")
	cmd.Flags().StringVar(&since, "since", "", "Fetch punches at or after this time (YYYY-MM-DD or YYYY-MM-DD HH:MM)")
	cmd.Flags().StringVar(&until, "until", "", "Fetch punches at or before this time")
	cmd.Flags().StringVar(&device, "device", "", "Sync one terminal by name or host:port")
	cmd.Flags().BoolVar(&noAggregate, "no-aggregate", false, "Store punches without aggregating attendance")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// parseTimeFlag accepts RFC 3339, "YYYY-MM-DD HH:MM[:SS]", or a bare date in
// loc. A bare date is the start of the day, or its last second with
// endOfDay.
func parseTimeFlag(value string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return &ts, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"} {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return &ts, nil
		}
	}
	day, err := time.ParseInLocation(punch.DateLayout, value, loc)
	if err != nil {
		return nil, fmt.Errorf("unrecognized time %q", value)
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Second)
	}
	return &day, nil
}

func renderSyncReport(out io.Writer, report syncer.Report, colorize bool) {
	rows := make([][]string, 0, len(report.Devices))
	for _, d := range report.Devices {
		result := colorizeCell("ok", statusOK, colorize)
		if d.Failed() {
			result = colorizeCell(d.Error, statusError, colorize)
		}
		rows = append(rows, []string{
			d.Device,
			d.Address,
			strconv.Itoa(d.Fetched),
			strconv.Itoa(d.Inserted),
			strconv.Itoa(d.Duplicates),
			strconv.Itoa(d.Invalid),
			strconv.Itoa(d.UnmatchedEmployee),
			result,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Device", "Address", "Fetched", "Inserted", "Duplicates", "Invalid", "Unmatched", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "Run %s: %d synced, %d failed, %d inserted\n",
		report.RunID, report.DevicesSynced, report.DevicesFailed, report.TotalInserted)
	if report.Aggregation != nil {
		renderAggregation(out, *report.Aggregation)
	}
	if report.AggregationError != "" {
		fmt.Fprintf(out, "Aggregation failed: %s\n", report.AggregationError)
	}
}

func renderAggregation(out io.Writer, stats attendance.Stats) {
	fmt.Fprintf(out, "Aggregated %d punches: %d days created, %d updated, %d errors\n",
		stats.ProcessedLogs, stats.Created, stats.Updated, stats.Errors)
}

func newAggregateCommand(ctx *commandContext) *cobra.Command {
	var (
		employee string
		date     string
		reset    bool
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Build daily attendance from unprocessed punches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := attendance.Filter{
				EmployeeCode: strings.TrimSpace(employee),
				Date:         strings.TrimSpace(date),
			}
			return ctx.withOrchestrator(func(orch *syncer.Orchestrator, st *store.Store) error {
				runCtx := cmd.Context()
				if reset {
					n, err := st.ResetProcessed(runCtx, store.PunchFilter{EmployeeCode: filter.EmployeeCode, Date: filter.Date})
					if err != nil {
						return err
					}
					if !jsonOut {
						fmt.Fprintf(cmd.OutOrStdout(), "Reset %d processed punches\n", n)
					}
				}
				stats, err := orch.Aggregator().Run(runCtx, filter)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.FromAggregationStats(&stats))
				}
				renderAggregation(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&employee, "employee", "", "Limit to one employee code")
	cmd.Flags().StringVar(&date, "date", "", "Limit to one date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Recompute days whose punches were already processed")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newBackfillCommand(ctx *commandContext) *cobra.Command {
	var (
		date    string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Mark employees without attendance absent or on leave",
		Long:  "Creates absent or on_leave rows for active employees with no attendance on a\npast date. Defaults to yesterday. Existing rows are left alone.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOrchestrator(func(orch *syncer.Orchestrator, _ *store.Store) error {
				agg := orch.Aggregator()
				day := strings.TrimSpace(date)
				if day == "" {
					day = agg.Yesterday()
				}
				summary, err := agg.Backfill(cmd.Context(), day)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, summary)
				}
				renderDaySummary(cmd.OutOrStdout(), summary, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date to backfill (YYYY-MM-DD, default yesterday)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderDaySummary(out io.Writer, s attendance.DaySummary, colorize bool) {
	for _, line := range renderSectionHeader("Attendance "+s.Date, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Employees", statusInfo, strconv.Itoa(s.TotalEmployees), colorize))
	fmt.Fprintln(out, renderStatusLine("Rows Created", statusInfo, strconv.Itoa(s.Created), colorize))
	for _, item := range []struct {
		status string
		count  int
	}{
		{string(store.StatusPresent), s.Present},
		{string(store.StatusLate), s.Late},
		{string(store.StatusHalfDay), s.HalfDay},
		{string(store.StatusOnLeave), s.OnLeave},
		{string(store.StatusAbsent), s.Absent},
	} {
		kind := statusInfo
		if item.count > 0 {
			kind = attendanceStatusKind(item.status)
		}
		fmt.Fprintln(out, renderStatusLine(titleLabel(item.status), kind, strconv.Itoa(item.count), colorize))
	}
}

func newNotifyLateCommand(ctx *commandContext) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "notify-late",
		Short: "Send late-arrival notices for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(ctx.configValue().Notifications.NtfyTopic) == "" && ctx.notifier == nil {
				return errors.New("notifications.ntfy_topic is not set")
			}
			return ctx.withOrchestrator(func(orch *syncer.Orchestrator, _ *store.Store) error {
				agg := orch.Aggregator()
				day := strings.TrimSpace(date)
				if day == "" {
					day = agg.Today()
				}
				sent, err := agg.NotifyLate(cmd.Context(), day, orch.Notifier())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %d late-arrival notices for %s\n", sent, day)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date to report (YYYY-MM-DD, default today)")
	return cmd
}
