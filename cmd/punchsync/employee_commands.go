package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"punchsync/internal/directory"
	"punchsync/internal/store"
)

func newEmployeesCommand(ctx *commandContext) *cobra.Command {
	employeesCmd := &cobra.Command{
		Use:   "employees",
		Short: "Manage the employee directory",
	}
	employeesCmd.AddCommand(newEmployeesImportCommand(ctx))
	employeesCmd.AddCommand(newEmployeesListCommand(ctx))
	employeesCmd.AddCommand(newEmployeesRemoveCommand(ctx))
	return employeesCmd
}

func newEmployeesImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <roster.toml>",
		Short: "Load shifts, employees, and leaves from a roster file",
		Long: "Upserts every shift and employee in the roster. Leaves listed for an\n" +
			"employee replace that employee's stored leaves.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				result, err := directory.NewImporter(st, logger).ImportFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d shifts, %d employees, %d leaves\n",
					result.Shifts, result.Employees, result.Leaves)
				return nil
			})
		},
	}
}

func newEmployeesListCommand(ctx *commandContext) *cobra.Command {
	var (
		all     bool
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				employees, err := st.ListEmployees(cmd.Context(), !all)
				if err != nil {
					return err
				}
				if jsonOut {
					if employees == nil {
						employees = []*store.Employee{}
					}
					return writeJSON(cmd, employees)
				}
				out := cmd.OutOrStdout()
				if len(employees) == 0 {
					fmt.Fprintln(out, "No employees; import a roster with `punchsync employees import`")
					return nil
				}
				rows := make([][]string, 0, len(employees))
				for _, emp := range employees {
					rows = append(rows, employeeRow(emp))
				}
				fmt.Fprint(out, renderTable(
					[]string{"Code", "Name", "Device User", "Shift", "Hours", "Active"},
					rows,
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive employees")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func employeeRow(emp *store.Employee) []string {
	deviceUser := emp.DeviceUserID
	if deviceUser == "" {
		deviceUser = "-"
	}
	shift, hours := "-", "-"
	if emp.Shift != nil {
		shift = emp.Shift.Name
		hours = emp.Shift.StartTime + "-" + emp.Shift.EndTime
	}
	return []string{emp.Code, emp.Name, deviceUser, shift, hours, yesNo(emp.Active)}
}


func newEmployeesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <emp_code>",
		Short: "Delete an employee from the directory",
		Long:  "Stored punches and attendance rows are kept.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				removed, err := st.DeleteEmployee(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("employee %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed employee %s\n", args[0])
				return nil
			})
		},
	}
}
