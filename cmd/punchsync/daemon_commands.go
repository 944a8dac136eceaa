package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"punchsync/internal/api"
	"punchsync/internal/config"
	"punchsync/internal/daemonctl"
	"punchsync/internal/daemonrun"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 5 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler and status API in the foreground",
		Long: "Runs scheduled syncs, backfills, and late notices, and serves the status API\n" +
			"on paths.api_bind until interrupted. Use the subcommands to manage a\n" +
			"background daemon.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				Logger: ctx.logger,
				Driver: ctx.driver,
			})
		},
	}

	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	daemonCmd.AddCommand(newDaemonSyncCommand(ctx))
	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()
			if status, err := client.Status(runCtx); err == nil && status.Running {
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", status.PID)
				return nil
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			configPath, err := launchConfigPath(ctx.configFlag)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon not running, launching...")
			if err := daemonctl.Launch(exe, daemonctl.LaunchOptions{ConfigPath: configPath}); err != nil {
				return err
			}
			status, err := daemonctl.WaitForDaemon(runCtx, client, daemonStartTimeout)
			if err != nil {
				return fmt.Errorf("%w; check %s", err, ctx.configValue().LogPath())
			}
			fmt.Fprintf(stdout, "Daemon started (pid %d)\n", status.PID)
			return nil
		},
	}
}

// launchConfigPath makes an explicit --config absolute so the detached
// daemon resolves it regardless of its working directory.
func launchConfigPath(flag string) (string, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return "", nil
	}
	expanded, err := config.ExpandPath(flag)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return expanded, nil
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			result, err := daemonctl.Stop(cmd.Context(), client, daemonStopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in %s; killed pid %d\n", daemonStopGrace, result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's jobs and sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return wrapDaemonError(err)
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out, renderStatusLine("Running", statusOK, yesNo(status.Running), colorize))
			fmt.Fprintln(out, renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
			fmt.Fprintln(out, renderStatusLine("Lock File", statusInfo, status.LockFilePath, colorize))
			fmt.Fprintln(out)
			if len(status.Jobs) > 0 {
				fmt.Fprint(out, renderJobsTable(status.Jobs))
				fmt.Fprintln(out)
			}
			renderSyncStatus(out, status.Sync, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderJobsTable(jobs []api.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		lastRun := "-"
		if j.LastRun != "" {
			lastRun = humanTime(j.LastRun)
		}
		next := "-"
		if j.Next != "" {
			next = humanTime(j.Next)
		}
		lastError := j.LastError
		if lastError == "" {
			lastError = "-"
		}
		rows = append(rows, []string{titleLabel(j.Name), j.Spec, next, lastRun, strconv.Itoa(j.Runs), lastError})
	}
	return renderTable(
		[]string{"Job", "Schedule", "Next Run", "Last Run", "Runs", "Last Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func newDaemonSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		days        int
		device      string
		noAggregate bool
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ask the running daemon to sync now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.daemonClient()
			if err != nil {
				return err
			}
			req := api.SyncRequest{Device: strings.TrimSpace(device)}
			if cmd.Flags().Changed("days") {
				req.Days = &days
			}
			if noAggregate {
				aggregate := false
				req.AutoAggregate = &aggregate
			}
			report, err := client.Sync(cmd.Context(), req)
			if err != nil {
				return wrapDaemonError(err)
			}
			if jsonOut {
				return writeJSON(cmd, report)
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(report.Devices))
			for _, d := range report.Devices {
				result := "ok"
				if d.Error != "" {
					result = d.Error
				}
				rows = append(rows, []string{d.Device, strconv.Itoa(d.Fetched), strconv.Itoa(d.Inserted), strconv.Itoa(d.Duplicates), result})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Device", "Fetched", "Inserted", "Duplicates", "Result"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Run %s: %d synced, %d failed, %d inserted\n",
				report.RunID, report.DevicesSynced, report.DevicesFailed, report.TotalInserted)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Days of history to fetch (default: the daemon's lookback)")
	cmd.Flags().StringVar(&device, "device", "", "Sync one terminal by name or host:port")
	cmd.Flags().BoolVar(&noAggregate, "no-aggregate", false, "Store punches without aggregating attendance")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}
