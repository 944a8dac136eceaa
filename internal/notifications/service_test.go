package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"punchsync/internal/config"
	"punchsync/internal/notifications"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func newService(topic string) notifications.Service {
	cfg := config.Default()
	cfg.Attendance.Timezone = "UTC"
	cfg.Notifications.NtfyTopic = topic
	return notifications.NewService(&cfg)
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := newService("")
	if err := svc.NotifyLateArrival(context.Background(), notifications.LateArrival{EmployeeCode: "E001", Minutes: 5}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNotifyLateArrivalFormatsMessage(t *testing.T) {
	server, seen := newServer(t, http.StatusOK)
	svc := newService(server.URL)

	checkIn := time.Date(2024, 3, 4, 9, 20, 0, 0, time.UTC)
	err := svc.NotifyLateArrival(context.Background(), notifications.LateArrival{
		EmployeeCode: "E001",
		Name:         "Sara",
		Date:         "2024-03-04",
		Minutes:      20,
		CheckIn:      &checkIn,
	})
	if err != nil {
		t.Fatalf("NotifyLateArrival: %v", err)
	}
	got := seen()
	if len(got) != 1 {
		t.Fatalf("expected one request, got %d", len(got))
	}
	if got[0].title != "Punchsync - Late Arrival" || got[0].tags != "punchsync,attendance,late" {
		t.Fatalf("unexpected headers %+v", got[0])
	}
	want := "Sara (E001) was 20 minute(s) late on 2024-03-04\nChecked in at 09:20"
	if got[0].body != want {
		t.Fatalf("body = %q, want %q", got[0].body, want)
	}
}

func TestNotifyDeviceFailures(t *testing.T) {
	server, seen := newServer(t, http.StatusOK)
	svc := newService(server.URL)

	if err := svc.NotifyDeviceFailures(context.Background(), nil); err != nil {
		t.Fatalf("empty failures: %v", err)
	}
	err := svc.NotifyDeviceFailures(context.Background(), []notifications.DeviceFailure{
		{Device: "gate", Error: "connection error: unreachable"},
	})
	if err != nil {
		t.Fatalf("NotifyDeviceFailures: %v", err)
	}
	got := seen()
	if len(got) != 1 {
		t.Fatalf("expected a single request, got %d", len(got))
	}
	if got[0].priority != "high" || !strings.Contains(got[0].body, "gate: connection error") {
		t.Fatalf("unexpected request %+v", got[0])
	}
}

func TestNtfyErrorStatusIsReturned(t *testing.T) {
	server, _ := newServer(t, http.StatusForbidden)
	svc := newService(server.URL)

	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
