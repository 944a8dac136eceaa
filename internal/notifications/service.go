package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"punchsync/internal/config"
)

const userAgent = "punchsync/0.1.0"

// LateArrival describes one employee who checked in after shift start.
type LateArrival struct {
	EmployeeCode string
	Name         string
	Date         string
	Minutes      int
	CheckIn      *time.Time
}

// DeviceFailure names a terminal that could not be synced.
type DeviceFailure struct {
	Device string
	Error  string
}

// Service defines the notification surface exposed to the sync and
// attendance jobs.
type Service interface {
	NotifyLateArrival(ctx context.Context, late LateArrival) error
	NotifyDeviceFailures(ctx context.Context, failures []DeviceFailure) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		loc:      cfg.Location(),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	loc      *time.Location
}

func (n *ntfyService) NotifyLateArrival(ctx context.Context, late LateArrival) error {
	who := strings.TrimSpace(late.Name)
	if who == "" {
		who = late.EmployeeCode
	} else if late.EmployeeCode != "" {
		who = fmt.Sprintf("%s (%s)", who, late.EmployeeCode)
	}
	message := fmt.Sprintf("%s was %d minute(s) late on %s", who, late.Minutes, late.Date)
	if late.CheckIn != nil {
		message = fmt.Sprintf("%s\nChecked in at %s", message, late.CheckIn.In(n.loc).Format("15:04"))
	}
	return n.send(ctx, payload{
		title:   "Punchsync - Late Arrival",
		message: message,
		tags:    []string{"punchsync", "attendance", "late"},
	})
}

func (n *ntfyService) NotifyDeviceFailures(ctx context.Context, failures []DeviceFailure) error {
	if len(failures) == 0 {
		return nil
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "%d terminal(s) could not be synced", len(failures))
	for _, f := range failures {
		builder.WriteString("\n")
		builder.WriteString(f.Device)
		if msg := strings.TrimSpace(f.Error); msg != "" {
			builder.WriteString(": ")
			builder.WriteString(msg)
		}
	}
	return n.send(ctx, payload{
		title:    "Punchsync - Sync Failed",
		message:  builder.String(),
		tags:     []string{"punchsync", "sync", "error"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Punchsync - Test",
		message:  "Notification system test",
		tags:     []string{"punchsync", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyLateArrival(context.Context, LateArrival) error         { return nil }
func (noopService) NotifyDeviceFailures(context.Context, []DeviceFailure) error { return nil }
func (noopService) TestNotification(context.Context) error                      { return nil }
