package terminal_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"punchsync/internal/services"
	"punchsync/internal/terminal"
	"punchsync/internal/terminal/terminaltest"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newClient(driver terminal.Driver, sleeper *sleepRecorder) *terminal.Client {
	return terminal.NewClient(driver, "Front Door", "10.0.0.5", 4370, terminal.Options{
		ConnectTimeout: time.Second,
		MaxAttempts:    3,
		RetryDelay:     2 * time.Second,
		Location:       time.UTC,
		Sleep:          sleeper.sleep,
	})
}

func TestConnectRetriesWithFixedDelay(t *testing.T) {
	driver := terminaltest.NewDriver()
	fake := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())
	fake.FailConnects(2)
	sleeper := &sleepRecorder{}
	client := newClient(driver, sleeper)

	if err := client.Connect(context.Background(), true); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	defer client.Disconnect(context.Background())

	connects, disables, _, _ := fake.Counts()
	if connects != 3 {
		t.Fatalf("expected 3 connect attempts, got %d", connects)
	}
	if disables != 1 || !fake.Disabled() {
		t.Fatalf("expected terminal disabled once after connect, got %d", disables)
	}
	if len(sleeper.delays) != 2 {
		t.Fatalf("expected 2 waits between attempts, got %v", sleeper.delays)
	}
	for _, d := range sleeper.delays {
		if d != 2*time.Second {
			t.Fatalf("expected fixed 2s delay, got %v", sleeper.delays)
		}
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	driver := terminaltest.NewDriver()
	fake := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())
	fake.FailConnects(10)
	sleeper := &sleepRecorder{}
	client := newClient(driver, sleeper)

	err := client.Connect(context.Background(), true)
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if client.Connected() {
		t.Fatal("expected client to stay disconnected")
	}
	if connects, _, _, _ := fake.Counts(); connects != 3 {
		t.Fatalf("expected 3 attempts, got %d", connects)
	}
	if len(sleeper.delays) != 2 {
		t.Fatalf("expected no wait after the last attempt, got %v", sleeper.delays)
	}
}

func TestConnectWithoutRetryTriesOnce(t *testing.T) {
	driver := terminaltest.NewDriver()
	fake := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())
	fake.FailConnects(1)
	client := newClient(driver, &sleepRecorder{})

	if err := client.Connect(context.Background(), false); err == nil {
		t.Fatal("expected error without retry")
	}
	if connects, _, _, _ := fake.Counts(); connects != 1 {
		t.Fatalf("expected single attempt, got %d", connects)
	}
}

func TestConnectDoesNotRetryMissingDriver(t *testing.T) {
	driver := terminaltest.NewDriver()
	fake := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())
	fake.FailConnectsWith(services.Wrap(terminal.ErrDriverUnavailable, "bridge", "connect", "protocol not supported", nil))
	sleeper := &sleepRecorder{}
	client := newClient(driver, sleeper)

	err := client.Connect(context.Background(), true)
	if !errors.Is(err, terminal.ErrDriverUnavailable) {
		t.Fatalf("expected driver unavailable, got %v", err)
	}
	if connects, _, _, _ := fake.Counts(); connects != 1 {
		t.Fatalf("expected one attempt, got %d", connects)
	}
	if len(sleeper.delays) != 0 {
		t.Fatalf("expected no retry waits, got %v", sleeper.delays)
	}

	nilDriver := terminal.NewClient(nil, "", "10.0.0.9", 4370, terminal.Options{})
	if err := nilDriver.Connect(context.Background(), true); !errors.Is(err, terminal.ErrDriverUnavailable) {
		t.Fatalf("expected driver unavailable for nil driver, got %v", err)
	}
}

func TestDisconnectIsSafeAndRestoresTerminal(t *testing.T) {
	driver := terminaltest.NewDriver()
	fake := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())
	client := newClient(driver, &sleepRecorder{})

	// Not connected yet.
	client.Disconnect(context.Background())

	if err := client.Connect(context.Background(), true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client.Disconnect(ctx)
	client.Disconnect(ctx)

	_, _, enables, disconnects := fake.Counts()
	if enables != 1 || disconnects != 1 {
		t.Fatalf("expected one enable and one disconnect, got %d/%d", enables, disconnects)
	}
	if fake.Disabled() {
		t.Fatal("terminal left in transfer mode")
	}
}

func TestPunchesFiltersInclusiveRange(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	records := []terminal.Record{
		{UserID: "1", Timestamp: day.Add(8 * time.Hour)},
		{UserID: "1", Timestamp: day.Add(9 * time.Hour)},
		{UserID: "1", Timestamp: day.Add(17 * time.Hour)},
		{UserID: "1", Timestamp: day.Add(18 * time.Hour)},
	}
	driver := terminaltest.NewDriver()
	driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(records...))
	client := newClient(driver, &sleepRecorder{})
	ctx := context.Background()

	if got, err := client.Punches(ctx, nil, nil); err != nil || got != nil {
		t.Fatalf("expected no data while disconnected, got %v %v", got, err)
	}

	if err := client.Connect(ctx, true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	all, err := client.Punches(ctx, nil, nil)
	if err != nil || len(all) != 4 {
		t.Fatalf("expected full buffer, got %d %v", len(all), err)
	}

	since := day.Add(9 * time.Hour)
	until := day.Add(17 * time.Hour)
	filtered, err := client.Punches(ctx, &since, &until)
	if err != nil {
		t.Fatalf("Punches: %v", err)
	}
	if len(filtered) != 2 || !filtered[0].Timestamp.Equal(since) || !filtered[1].Timestamp.Equal(until) {
		t.Fatalf("expected both bounds kept, got %+v", filtered)
	}
}

func TestPunchesAnchorsNaiveTimestamps(t *testing.T) {
	zone := time.FixedZone("UTC+3", 3*60*60)
	// 08:00 wall clock in UTC+3 is 05:00 UTC.
	naive := terminal.Record{UserID: "1", Timestamp: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), Naive: true}
	driver := terminaltest.NewDriver()
	driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(naive))
	client := terminal.NewClient(driver, "", "10.0.0.5", 4370, terminal.Options{Location: zone})
	ctx := context.Background()
	if err := client.Connect(ctx, false); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	until := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)
	got, err := client.Punches(ctx, nil, &until)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected anchored record inside range, got %v %v", got, err)
	}
	anchored := terminal.Anchor(got[0], zone)
	if !anchored.Equal(time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected anchored instant %v", anchored)
	}
	if client.Name() != "10.0.0.5:4370" {
		t.Fatalf("expected name to default to address, got %q", client.Name())
	}
}

func TestPunchesWrapsFetchFailure(t *testing.T) {
	driver := terminaltest.NewDriver()
	fake := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())
	fake.FailAttendance(errors.New("socket closed"))
	client := newClient(driver, &sleepRecorder{})
	ctx := context.Background()
	if err := client.Connect(ctx, true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	_, err := client.Punches(ctx, nil, nil)
	if !errors.Is(err, services.ErrConnection) || !strings.Contains(err.Error(), "socket closed") {
		t.Fatalf("expected wrapped connection error, got %v", err)
	}
}

func TestInfoReportsAddress(t *testing.T) {
	driver := terminaltest.NewDriver()
	driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal(terminal.Record{UserID: "1", Timestamp: time.Now()}))
	client := newClient(driver, &sleepRecorder{})
	ctx := context.Background()

	if info, err := client.Info(ctx); info != nil || err != nil {
		t.Fatalf("expected nil info while disconnected, got %v %v", info, err)
	}
	if err := client.Connect(ctx, true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)
	info, err := client.Info(ctx)
	if err != nil || info == nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "Front Door" || info.Host != "10.0.0.5" || info.Port != 4370 || info.RecordsCount != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestEnrollEmployeeTruncatesName(t *testing.T) {
	driver := terminaltest.NewDriver()
	fake := driver.Add("10.0.0.5", 4370, terminaltest.NewTerminal())
	client := newClient(driver, &sleepRecorder{})
	ctx := context.Background()
	if err := client.Connect(ctx, true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect(ctx)

	long := "Abdulrahman Mohammed Al-Harbi"
	if err := client.EnrollEmployee(ctx, "17", long); err != nil {
		t.Fatalf("EnrollEmployee: %v", err)
	}
	user, ok := fake.User(17)
	if !ok {
		t.Fatal("expected user in slot 17")
	}
	if user.Name != long[:24] || user.Privilege != 0 || user.UserID != "17" {
		t.Fatalf("unexpected user %+v", user)
	}

	if err := client.EnrollEmployee(ctx, "E-17", "Bad"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for non-numeric id, got %v", err)
	}

	users, err := client.Users(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one user, got %v %v", users, err)
	}
	if err := client.RemoveUser(ctx, 17); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	if _, ok := fake.User(17); ok {
		t.Fatal("expected user removed")
	}
}

func TestTruncateNameCountsRunes(t *testing.T) {
	name := strings.Repeat("ع", 30)
	if got := terminal.TruncateName(name); len([]rune(got)) != terminal.MaxUserNameLength {
		t.Fatalf("expected %d runes, got %d", terminal.MaxUserNameLength, len([]rune(got)))
	}
}
