package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"punchsync/internal/api"
	"punchsync/internal/registry"
	"punchsync/internal/store"
	"punchsync/internal/syncer"
	"punchsync/internal/terminal"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and manage the configured terminals",
	}

	devicesCmd.AddCommand(newDevicesListCommand(ctx))
	devicesCmd.AddCommand(newDevicesTestCommand(ctx))
	devicesCmd.AddCommand(newDevicesUsersCommand(ctx))
	devicesCmd.AddCommand(newDevicesEnrollCommand(ctx))
	devicesCmd.AddCommand(newDevicesRemoveCommand(ctx))
	return devicesCmd
}

func newDevicesListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured terminals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			devices := registry.FromConfig(ctx.configValue(), logger).Devices()
			if jsonOut {
				return writeJSON(cmd, api.DevicesResponse{Devices: api.FromDevices(devices)})
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No terminals configured")
				return nil
			}
			rows := make([][]string, 0, len(devices))
			for _, d := range devices {
				rows = append(rows, []string{d.Name, d.Host, strconv.Itoa(d.Port)})
			}
			fmt.Fprint(out, renderTable([]string{"Name", "Host", "Port"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newDevicesTestCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "test [host[:port]]",
		Short: "Probe terminals once without retries",
		Long:  "Connects to the given address, or to every configured terminal, reads its\nhardware details, and disconnects.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			var targets []registry.Device
			if len(args) == 1 {
				device, err := registry.ParseEntry(args[0], cfg.Devices.DefaultPort)
				if err != nil {
					return err
				}
				if device.Name == "" {
					device.Name = device.Address()
				}
				targets = append(targets, device)
			}

			return ctx.withOrchestrator(func(orch *syncer.Orchestrator, _ *store.Store) error {
				if len(targets) == 0 {
					targets = orch.ListConfiguredDevices()
				}
				if len(targets) == 0 {
					return errors.New("no terminals configured; pass host[:port] or set devices.list")
				}

				runCtx := cmd.Context()
				results := make([]syncer.ConnectionResult, 0, len(targets))
				failed := 0
				for _, d := range targets {
					result := orch.TestConnection(runCtx, d.Host, d.Port)
					if result.DeviceInfo != nil {
						result.DeviceInfo.Name = d.Name
						result.DeviceInfo.Host = d.Host
						result.DeviceInfo.Port = d.Port
					}
					if !result.Success {
						failed++
					}
					results = append(results, result)
				}

				if jsonOut {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					renderConnectionResults(cmd, targets, results)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d terminals failed the connection test", failed, len(targets))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderConnectionResults(cmd *cobra.Command, targets []registry.Device, results []syncer.ConnectionResult) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		row := []string{targets[i].Name, targets[i].Address()}
		if !r.Success {
			row = append(row, colorizeCell(titleLabel(r.ErrorKind), statusError, colorize), "", "", "", "")
			rows = append(rows, row)
			continue
		}
		info := r.DeviceInfo
		row = append(row,
			colorizeCell("OK", statusOK, colorize),
			info.Serial,
			info.Platform,
			strconv.Itoa(info.UsersCount),
			strconv.Itoa(info.RecordsCount),
		)
		rows = append(rows, row)
	}
	fmt.Fprint(out, renderTable(
		[]string{"Device", "Address", "Result", "Serial", "Platform", "Users", "Records"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	for i, r := range results {
		if !r.Success {
			fmt.Fprintf(out, "%s: %s\n", targets[i].Name, r.Error)
		}
	}
}

// withTerminal connects to a configured terminal for the duration of fn.
func withTerminal(cmd *cobra.Command, ctx *commandContext, key string, fn func(context.Context, *terminal.Client, *store.Store) error) error {
	logger, err := ctx.commandLogger()
	if err != nil {
		return err
	}
	cfg := ctx.configValue()
	device, ok := registry.FromConfig(cfg, logger).Lookup(key)
	if !ok {
		return fmt.Errorf("terminal %q is not configured (see `punchsync devices list`)", key)
	}
	return ctx.withStore(func(st *store.Store) error {
		runCtx := cmd.Context()
		client := terminal.NewClient(ctx.terminalDriver(), device.Name, device.Host, device.Port, terminal.OptionsFromConfig(cfg, logger))
		if err := client.Connect(runCtx, true); err != nil {
			return err
		}
		defer client.Disconnect(runCtx)
		return fn(runCtx, client, st)
	})
}

func newDevicesUsersCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "users <device>",
		Short: "List users enrolled on a terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTerminal(cmd, ctx, args[0], func(runCtx context.Context, client *terminal.Client, st *store.Store) error {
				users, err := client.Users(runCtx)
				if err != nil {
					return err
				}
				if jsonOut {
					if users == nil {
						users = []terminal.User{}
					}
					return writeJSON(cmd, users)
				}
				out := cmd.OutOrStdout()
				if len(users) == 0 {
					fmt.Fprintf(out, "No users enrolled on %s\n", client.Name())
					return nil
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					employee := "-"
					emp, err := st.EmployeeByDeviceUserID(runCtx, u.UserID)
					if err != nil {
						return err
					}
					if emp != nil {
						employee = emp.Code
					}
					rows = append(rows, []string{strconv.Itoa(u.UID), u.UserID, u.Name, privilegeLabel(u.Privilege), employee})
				}
				fmt.Fprint(out, renderTable(
					[]string{"UID", "User ID", "Name", "Privilege", "Employee"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func privilegeLabel(level int) string {
	if level == 0 {
		return "user"
	}
	return "admin (" + strconv.Itoa(level) + ")"
}

func newDevicesEnrollCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <device> <emp_code>",
		Short: "Write an employee to a terminal's user table",
		Long:  "Creates or replaces the terminal user whose slot is the employee's device\nuser id. Fingerprints still have to be registered at the terminal.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.TrimSpace(args[1])
			return withTerminal(cmd, ctx, args[0], func(runCtx context.Context, client *terminal.Client, st *store.Store) error {
				emp, err := st.EmployeeByCode(runCtx, code)
				if err != nil {
					return err
				}
				if emp == nil {
					return fmt.Errorf("employee %s not found", code)
				}
				if emp.DeviceUserID == "" {
					return fmt.Errorf("employee %s has no device user id", code)
				}
				if err := client.EnrollEmployee(runCtx, emp.DeviceUserID, emp.Name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %s (%s) on %s as user %s\n", emp.Code, emp.Name, client.Name(), emp.DeviceUserID)
				return nil
			})
		},
	}
}

func newDevicesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <device> <uid>",
		Short: "Delete a user slot from a terminal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.Atoi(strings.TrimSpace(args[1]))
			if err != nil || uid <= 0 {
				return fmt.Errorf("uid must be a positive integer, got %q", args[1])
			}
			return withTerminal(cmd, ctx, args[0], func(runCtx context.Context, client *terminal.Client, _ *store.Store) error {
				if err := client.RemoveUser(runCtx, uid); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed user %d from %s\n", uid, client.Name())
				return nil
			})
		},
	}
}
