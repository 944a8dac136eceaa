package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"punchsync/internal/logging"
	"punchsync/internal/services"
	"punchsync/internal/store"
)

// Roster is the decoded import file.
type Roster struct {
	Shifts    []ShiftEntry    `toml:"shifts" validate:"dive"`
	Employees []EmployeeEntry `toml:"employees" validate:"dive"`
	Leaves    []LeaveEntry    `toml:"leaves" validate:"dive"`
}

// ShiftEntry is one [[shifts]] table.
type ShiftEntry struct {
	Name         string `toml:"name" validate:"required,max=64"`
	Start        string `toml:"start" validate:"required,datetime=15:04"`
	End          string `toml:"end" validate:"required,datetime=15:04"`
	BreakMinutes int    `toml:"break_minutes" validate:"min=0,max=720"`
}

// EmployeeEntry is one [[employees]] table. Active defaults to true.
type EmployeeEntry struct {
	Code         string `toml:"code" validate:"required,max=32"`
	Name         string `toml:"name" validate:"required,max=128"`
	DeviceUserID string `toml:"device_user_id" validate:"omitempty,numeric,max=9"`
	Shift        string `toml:"shift" validate:"omitempty,max=64"`
	Active       *bool  `toml:"active"`
}

// LeaveEntry is one [[leaves]] table. Status defaults to approved.
type LeaveEntry struct {
	Employee string `toml:"employee" validate:"required"`
	Start    string `toml:"start" validate:"required,datetime=2006-01-02"`
	End      string `toml:"end" validate:"required,datetime=2006-01-02"`
	Status   string `toml:"status" validate:"omitempty,oneof=approved pending rejected"`
}

// Result counts what an import wrote.
type Result struct {
	Shifts    int `json:"shifts"`
	Employees int `json:"employees"`
	Leaves    int `json:"leaves"`
}

// Store is the persistence the importer needs.
type Store interface {
	UpsertShift(ctx context.Context, shift store.Shift) (int64, error)
	ShiftByName(ctx context.Context, name string) (*store.Shift, error)
	UpsertEmployee(ctx context.Context, emp store.Employee, shiftID *int64) error
	EmployeeByCode(ctx context.Context, code string) (*store.Employee, error)
	ClearLeaves(ctx context.Context, code string) error
	AddLeave(ctx context.Context, leave store.Leave) (int64, error)
}

// Importer writes rosters into a store.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// NewImporter returns an importer writing to st.
func NewImporter(st Store, logger *slog.Logger) *Importer {
	return &Importer{store: st, logger: logging.NewComponentLogger(logger, "directory")}
}

// Decode parses and validates a roster.
func Decode(r io.Reader) (*Roster, error) {
	var roster Roster
	decoder := toml.NewDecoder(r).DisallowUnknownFields()
	if err := decoder.Decode(&roster); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, services.Wrap(services.ErrValidation, "directory", "decode", strict.String(), nil)
		}
		return nil, services.Wrap(services.ErrValidation, "directory", "decode", "parse roster", err)
	}
	if err := roster.Validate(); err != nil {
		return nil, err
	}
	return &roster, nil
}

// ImportFile decodes path and imports it.
func (i *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()

	roster, err := Decode(file)
	if err != nil {
		return Result{}, err
	}
	return i.Import(ctx, roster)
}

// Validate checks field rules and the references that need no store: shift
// names, employee codes, and device user ids are unique, and no leave ends
// before it starts. Unknown shift and employee names fail at import.
func (r *Roster) Validate() error {
	if err := services.ValidateStruct("directory", r); err != nil {
		return err
	}
	shifts := make(map[string]struct{}, len(r.Shifts))
	for _, s := range r.Shifts {
		if _, dup := shifts[s.Name]; dup {
			return invalid("shift %q is listed twice", s.Name)
		}
		shifts[s.Name] = struct{}{}
	}
	codes := make(map[string]struct{}, len(r.Employees))
	deviceIDs := make(map[string]string, len(r.Employees))
	for _, e := range r.Employees {
		if _, dup := codes[e.Code]; dup {
			return invalid("employee %q is listed twice", e.Code)
		}
		codes[e.Code] = struct{}{}
		if e.DeviceUserID == "" {
			continue
		}
		if other, dup := deviceIDs[e.DeviceUserID]; dup {
			return invalid("device user id %s is used by %s and %s", e.DeviceUserID, other, e.Code)
		}
		deviceIDs[e.DeviceUserID] = e.Code
	}
	for _, l := range r.Leaves {
		if l.End < l.Start {
			return invalid("leave for %s ends before it starts", l.Employee)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "directory", "validate", fmt.Sprintf(format, args...), nil)
}

// Import writes a validated roster. Shifts and employees are upserted.
// Every employee named in the leaves section has their stored leaves
// replaced by the listed ones.
func (i *Importer) Import(ctx context.Context, roster *Roster) (Result, error) {
	var result Result
	if roster == nil {
		return result, errors.New("roster is nil")
	}

	shiftIDs := make(map[string]int64, len(roster.Shifts))
	for _, s := range roster.Shifts {
		id, err := i.store.UpsertShift(ctx, store.Shift{
			Name:         s.Name,
			StartTime:    s.Start,
			EndTime:      s.End,
			BreakMinutes: s.BreakMinutes,
		})
		if err != nil {
			return result, err
		}
		shiftIDs[s.Name] = id
		result.Shifts++
	}

	for _, e := range roster.Employees {
		var shiftID *int64
		if e.Shift != "" {
			id, err := i.shiftID(ctx, shiftIDs, e.Shift)
			if err != nil {
				return result, err
			}
			shiftID = &id
		}
		active := true
		if e.Active != nil {
			active = *e.Active
		}
		emp := store.Employee{Code: e.Code, Name: e.Name, DeviceUserID: e.DeviceUserID, Active: active}
		if err := i.store.UpsertEmployee(ctx, emp, shiftID); err != nil {
			return result, err
		}
		result.Employees++
	}

	cleared := make(map[string]bool)
	for _, l := range roster.Leaves {
		if !cleared[l.Employee] {
			emp, err := i.store.EmployeeByCode(ctx, l.Employee)
			if err != nil {
				return result, err
			}
			if emp == nil {
				return result, services.Wrap(services.ErrNotFound, "directory", "import leaves",
					fmt.Sprintf("employee %q is not in the directory", l.Employee), nil)
			}
			if err := i.store.ClearLeaves(ctx, l.Employee); err != nil {
				return result, err
			}
			cleared[l.Employee] = true
		}
		status := store.LeaveApproved
		if l.Status != "" {
			status = store.LeaveStatus(l.Status)
		}
		if _, err := i.store.AddLeave(ctx, store.Leave{
			EmployeeCode: l.Employee,
			StartDate:    l.Start,
			EndDate:      l.End,
			Status:       status,
		}); err != nil {
			return result, err
		}
		result.Leaves++
	}

	i.logger.Info("roster imported",
		logging.String(logging.FieldEventType, "roster_imported"),
		logging.Int("shifts", result.Shifts),
		logging.Int("employees", result.Employees),
		logging.Int("leaves", result.Leaves),
	)
	return result, nil
}

func (i *Importer) shiftID(ctx context.Context, known map[string]int64, name string) (int64, error) {
	if id, ok := known[name]; ok {
		return id, nil
	}
	shift, err := i.store.ShiftByName(ctx, name)
	if err != nil {
		return 0, err
	}
	if shift == nil {
		return 0, services.Wrap(services.ErrNotFound, "directory", "import employees",
			fmt.Sprintf("shift %q is not defined", name), nil)
	}
	known[name] = shift.ID
	return shift.ID, nil
}
