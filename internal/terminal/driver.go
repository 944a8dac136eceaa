package terminal

import (
	"context"
	"time"

	"punchsync/internal/services"
)

// ErrDriverUnavailable is returned by drivers that cannot speak the terminal
// protocol at all. Connect does not retry it.
var ErrDriverUnavailable = services.ErrDriverUnavailable

// Driver opens protocol sessions to terminals.
type Driver interface {
	Connect(ctx context.Context, host string, port int, timeout time.Duration) (Session, error)
}

// Session is one open connection to a terminal.
type Session interface {
	DisableDevice(ctx context.Context) error
	EnableDevice(ctx context.Context) error
	Attendance(ctx context.Context) ([]Record, error)
	Info(ctx context.Context) (Info, error)
	Users(ctx context.Context) ([]User, error)
	SetUser(ctx context.Context, user User) error
	DeleteUser(ctx context.Context, uid int) error
	Disconnect(ctx context.Context) error
}

// Record is one swipe from the terminal buffer.
//
// Punch and Status are nil when the terminal did not report them. Naive
// timestamps carry the terminal's wall clock in the UTC fields and must be
// re-anchored with Anchor before use.
type Record struct {
	UserID    string
	Timestamp time.Time
	Naive     bool
	Punch     *int
	Status    *int
}

// Anchor returns the record instant, interpreting naive wall-clock readings
// in loc.
func Anchor(rec Record, loc *time.Location) time.Time {
	if !rec.Naive || rec.Timestamp.IsZero() {
		return rec.Timestamp
	}
	if loc == nil {
		loc = time.Local
	}
	ts := rec.Timestamp
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), loc)
}

// Info describes terminal hardware and buffer sizes.
type Info struct {
	Name         string    `json:"name"`
	Host         string    `json:"host"`
	Port         int       `json:"port"`
	Serial       string    `json:"serial_number"`
	Platform     string    `json:"platform"`
	Firmware     string    `json:"firmware_version"`
	DeviceTime   time.Time `json:"device_time,omitzero"`
	UsersCount   int       `json:"users_count"`
	RecordsCount int       `json:"records_count"`
}

// User is an enrolled terminal user.
type User struct {
	UID       int    `json:"uid"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Privilege int    `json:"privilege"`
}

// MaxUserNameLength is the longest name terminals store.
const MaxUserNameLength = 24
