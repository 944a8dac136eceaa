package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"punchsync/internal/logging"
	"punchsync/internal/notifications"
	"punchsync/internal/terminal"
	"punchsync/internal/terminal/terminaltest"
	"punchsync/internal/testsupport"
)

const testRoster = `
[[shifts]]
name = "day"
start = "09:00"
end = "17:00"
break_minutes = 30

[[employees]]
code = "E001"
name = "Sara Haddad"
device_user_id = "7"
shift = "day"

[[employees]]
code = "E002"
name = "Omar Nasser"
device_user_id = "8"
shift = "day"

[[employees]]
code = "E009"
name = "Former Staff"
device_user_id = "9"
shift = "day"
active = false
`

type recordingNotifier struct {
	notifications.Service

	mu       sync.Mutex
	late     []notifications.LateArrival
	failures []notifications.DeviceFailure
}

func (r *recordingNotifier) NotifyLateArrival(_ context.Context, late notifications.LateArrival) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.late = append(r.late, late)
	return nil
}

func (r *recordingNotifier) NotifyDeviceFailures(_ context.Context, failures []notifications.DeviceFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, failures...)
	return nil
}

type cliTestEnv struct {
	baseDir    string
	configPath string
	rosterPath string
	driver     *terminaltest.Driver
	gate       *terminaltest.Terminal
	notifier   *recordingNotifier
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	return setupCLITestEnvWithAPI(t, "")
}

func setupCLITestEnvWithAPI(t *testing.T, apiBind string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = %q

[devices]
list = "Gate|10.0.0.5:4370"
max_retries = 1
retry_delay = 0
bridge_url = "http://127.0.0.1:1"

[attendance]
timezone = "UTC"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), apiBind)
	testsupport.WriteFile(t, configPath, content)

	rosterPath := filepath.Join(base, "roster.toml")
	testsupport.WriteFile(t, rosterPath, testRoster)

	driver := terminaltest.NewDriver()
	gate := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())

	return &cliTestEnv{
		baseDir:    base,
		configPath: configPath,
		rosterPath: rosterPath,
		driver:     driver,
		gate:       gate,
		notifier:   &recordingNotifier{},
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	ctx := &commandContext{
		driver:   env.driver,
		logger:   logging.NewNop(),
		notifier: env.notifier,
	}
	cmd := buildRootCommand(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("punchsync %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}

func requireFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s: %v", path, err)
	}
}

// freeAddress returns a loopback address nothing is listening on.
func freeAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// yesterdayAt returns hh:mm yesterday in UTC with the matching date.
func yesterdayAt(hour, minute int) (time.Time, string) {
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), day.Format("2006-01-02")
}

func swipe(userID string, ts time.Time, kind int) terminal.Record {
	return terminal.Record{UserID: userID, Timestamp: ts, Punch: terminaltest.IntPtr(kind)}
}
