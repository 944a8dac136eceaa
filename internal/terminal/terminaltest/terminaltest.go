// Package terminaltest provides a scripted in-memory terminal driver.
package terminaltest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"punchsync/internal/terminal"
)

// ErrUnreachable is returned for addresses with no registered terminal.
var ErrUnreachable = errors.New("connection refused")

// Terminal is the scripted state of one fake terminal.
type Terminal struct {
	mu sync.Mutex

	records []terminal.Record
	info    terminal.Info
	users   map[int]terminal.User

	failConnects  int
	connectErr    error
	attendanceErr error

	connects    int
	disables    int
	enables     int
	disconnects int
	disabled    bool
}

// NewTerminal returns a terminal holding records.
func NewTerminal(records ...terminal.Record) *Terminal {
	return &Terminal{
		records: append([]terminal.Record(nil), records...),
		users:   map[int]terminal.User{},
		info:    terminal.Info{Serial: "FAKE0001", Platform: "ZMM220_TFT", Firmware: "Ver 6.60"},
	}
}

// SetRecords replaces the buffer.
func (t *Terminal) SetRecords(records ...terminal.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append([]terminal.Record(nil), records...)
}

// FailConnects makes the next n connects fail with a network error.
func (t *Terminal) FailConnects(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failConnects = n
}

// FailConnectsWith makes every connect fail with err.
func (t *Terminal) FailConnectsWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErr = err
}

// FailAttendance makes buffer reads fail with err.
func (t *Terminal) FailAttendance(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attendanceErr = err
}

// Counts reports connect, disable, enable, and disconnect calls.
func (t *Terminal) Counts() (connects, disables, enables, disconnects int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects, t.disables, t.enables, t.disconnects
}

// Disabled reports whether the terminal is left in transfer mode.
func (t *Terminal) Disabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disabled
}

// User returns the enrolled user in slot uid.
func (t *Terminal) User(uid int) (terminal.User, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	user, ok := t.users[uid]
	return user, ok
}

// Driver routes connects to registered terminals.
type Driver struct {
	mu        sync.Mutex
	terminals map[string]*Terminal
}

// NewDriver returns an empty driver.
func NewDriver() *Driver {
	return &Driver{terminals: map[string]*Terminal{}}
}

// Add registers t at host:port and returns it.
func (d *Driver) Add(host string, port int, t *Terminal) *Terminal {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminals[net.JoinHostPort(host, strconv.Itoa(port))] = t
	return t
}

// Connect implements terminal.Driver.
func (d *Driver) Connect(ctx context.Context, host string, port int, _ time.Duration) (terminal.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	d.mu.Lock()
	t, ok := d.terminals[address]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dial %s: %w", address, ErrUnreachable)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.connectErr != nil {
		return nil, t.connectErr
	}
	if t.failConnects > 0 {
		t.failConnects--
		return nil, fmt.Errorf("dial %s: i/o timeout", address)
	}
	return &session{t: t}, nil
}

type session struct {
	t      *Terminal
	closed bool
}

func (s *session) DisableDevice(context.Context) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.disables++
	s.t.disabled = true
	return nil
}

func (s *session) EnableDevice(context.Context) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.enables++
	s.t.disabled = false
	return nil
}

func (s *session) Attendance(context.Context) ([]terminal.Record, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.t.attendanceErr != nil {
		return nil, s.t.attendanceErr
	}
	return append([]terminal.Record(nil), s.t.records...), nil
}

func (s *session) Info(context.Context) (terminal.Info, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	info := s.t.info
	info.UsersCount = len(s.t.users)
	info.RecordsCount = len(s.t.records)
	return info, nil
}

func (s *session) Users(context.Context) ([]terminal.User, error) {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	users := make([]terminal.User, 0, len(s.t.users))
	for _, u := range s.t.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b terminal.User) int { return a.UID - b.UID })
	return users, nil
}

func (s *session) SetUser(_ context.Context, user terminal.User) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	s.t.users[user.UID] = user
	return nil
}

func (s *session) DeleteUser(_ context.Context, uid int) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if _, ok := s.t.users[uid]; !ok {
		return fmt.Errorf("user %d not enrolled", uid)
	}
	delete(s.t.users, uid)
	return nil
}

func (s *session) Disconnect(context.Context) error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	if s.closed {
		return errors.New("session already closed")
	}
	s.closed = true
	s.t.disconnects++
	return nil
}

// IntPtr returns a pointer to v for Record.Punch and Record.Status.
func IntPtr(v int) *int { return &v }
