// Package bridge implements terminal.Driver against a device gateway that
// speaks the terminal protocol and exposes sessions over HTTP and JSON.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"punchsync/internal/config"
	"punchsync/internal/services"
	"punchsync/internal/terminal"
)

// HTTPDoer describes the HTTP client used by the driver.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Driver opens gateway sessions.
type Driver struct {
	baseURL string
	token   string
	client  HTTPDoer
}

// New constructs a driver for the gateway at baseURL. An empty token sends
// no Authorization header.
func New(baseURL, token string, client HTTPDoer) *Driver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Driver{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  client,
	}
}

// NewFromConfig returns the configured gateway driver.
func NewFromConfig(cfg *config.Config) *Driver {
	if cfg == nil {
		return New("", "", nil)
	}
	// Each request is also bounded by the caller's context; this caps reads of
	// large terminal buffers.
	client := &http.Client{Timeout: cfg.ConnectTimeout() * 6}
	return New(cfg.Devices.BridgeURL, cfg.Devices.BridgeToken, client)
}

type openRequest struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	TimeoutMS int64  `json:"timeout_ms"`
}

type openResponse struct {
	SessionID string `json:"session_id"`
}

// Connect implements terminal.Driver.
func (d *Driver) Connect(ctx context.Context, host string, port int, timeout time.Duration) (terminal.Session, error) {
	if d.baseURL == "" {
		return nil, services.Wrap(terminal.ErrDriverUnavailable, "bridge", "connect", "gateway url not configured", nil)
	}
	var resp openResponse
	req := openRequest{Host: host, Port: port, TimeoutMS: timeout.Milliseconds()}
	if err := d.do(ctx, http.MethodPost, "/v1/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, services.Wrap(services.ErrTransient, "bridge", "connect", "gateway returned empty session id", nil)
	}
	return &session{driver: d, id: resp.SessionID}, nil
}

type session struct {
	driver *Driver
	id     string
}

func (s *session) path(suffix string) string {
	return "/v1/sessions/" + url.PathEscape(s.id) + suffix
}

func (s *session) DisableDevice(ctx context.Context) error {
	return s.driver.do(ctx, http.MethodPost, s.path("/disable"), nil, nil)
}

func (s *session) EnableDevice(ctx context.Context) error {
	return s.driver.do(ctx, http.MethodPost, s.path("/enable"), nil, nil)
}

type wireRecord struct {
	UserID    json.RawMessage `json:"user_id"`
	Timestamp string          `json:"timestamp"`
	Punch     *int            `json:"punch"`
	Status    *int            `json:"status"`
}

type attendanceResponse struct {
	Records []wireRecord `json:"records"`
}

func (s *session) Attendance(ctx context.Context) ([]terminal.Record, error) {
	var resp attendanceResponse
	if err := s.driver.do(ctx, http.MethodGet, s.path("/attendance"), nil, &resp); err != nil {
		return nil, err
	}
	records := make([]terminal.Record, 0, len(resp.Records))
	for _, wr := range resp.Records {
		rec := terminal.Record{
			UserID: decodeUserID(wr.UserID),
			Punch:  wr.Punch,
			Status: wr.Status,
		}
		// Unparseable timestamps stay zero so validation rejects them.
		if ts, naive, err := ParseTimestamp(wr.Timestamp); err == nil {
			rec.Timestamp = ts
			rec.Naive = naive
		}
		records = append(records, rec)
	}
	return records, nil
}

type infoResponse struct {
	Serial       string `json:"serial_number"`
	Platform     string `json:"platform"`
	Firmware     string `json:"firmware_version"`
	DeviceTime   string `json:"device_time"`
	UsersCount   int    `json:"users_count"`
	RecordsCount int    `json:"records_count"`
}

func (s *session) Info(ctx context.Context) (terminal.Info, error) {
	var resp infoResponse
	if err := s.driver.do(ctx, http.MethodGet, s.path("/info"), nil, &resp); err != nil {
		return terminal.Info{}, err
	}
	info := terminal.Info{
		Serial:       resp.Serial,
		Platform:     resp.Platform,
		Firmware:     resp.Firmware,
		UsersCount:   resp.UsersCount,
		RecordsCount: resp.RecordsCount,
	}
	if ts, _, err := ParseTimestamp(resp.DeviceTime); err == nil {
		info.DeviceTime = ts
	}
	return info, nil
}

type usersResponse struct {
	Users []terminal.User `json:"users"`
}

func (s *session) Users(ctx context.Context) ([]terminal.User, error) {
	var resp usersResponse
	if err := s.driver.do(ctx, http.MethodGet, s.path("/users"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (s *session) SetUser(ctx context.Context, user terminal.User) error {
	return s.driver.do(ctx, http.MethodPut, s.path("/users/"+strconv.Itoa(user.UID)), user, nil)
}

func (s *session) DeleteUser(ctx context.Context, uid int) error {
	return s.driver.do(ctx, http.MethodDelete, s.path("/users/"+strconv.Itoa(uid)), nil, nil)
}

func (s *session) Disconnect(ctx context.Context) error {
	return s.driver.do(ctx, http.MethodDelete, s.path(""), nil, nil)
}

func (d *Driver) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrConnection, "bridge", method+" "+path, "gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, "bridge", method+" "+path, "decode gateway response", err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(raw))
	var parsed errorBody
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
		detail = parsed.Error
	}
	message := fmt.Sprintf("gateway returned %d", resp.StatusCode)
	if detail != "" {
		message += ": " + detail
	}

	marker := services.ErrTransient
	switch {
	case resp.StatusCode == http.StatusNotImplemented:
		// The gateway has no protocol support for this terminal model.
		marker = terminal.ErrDriverUnavailable
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		marker = services.ErrConfiguration
	case resp.StatusCode == http.StatusNotFound:
		marker = services.ErrNotFound
	case resp.StatusCode == http.StatusBadGateway, resp.StatusCode == http.StatusGatewayTimeout:
		marker = services.ErrConnection
	}
	return services.Wrap(marker, "bridge", method+" "+path, message, nil)
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads a gateway timestamp. Values without a zone offset are
// returned as UTC wall-clock readings with naive set.
func ParseTimestamp(value string) (ts time.Time, naive bool, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, errors.New("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, false, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, true, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized timestamp %q", value)
}

// decodeUserID accepts numeric or string user ids.
func decodeUserID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return strings.Trim(string(raw), `"`)
}
