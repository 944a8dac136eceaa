package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"punchsync/internal/api"
	"punchsync/internal/config"
	"punchsync/internal/services"
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Client talks to a running daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for baseURL. A nil httpClient uses a client
// with a generous timeout, since syncs wait on terminals.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// FromConfig builds a client for the configured bind address. A wildcard
// or empty host is reached through loopback.
func FromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.Paths.APIBind == "" {
		return nil, services.Wrap(services.ErrConfiguration, "daemonctl", "client", "paths.api_bind is empty; the daemon API is disabled", nil)
	}
	host, port, err := net.SplitHostPort(cfg.Paths.APIBind)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemonctl", "client", fmt.Sprintf("paths.api_bind %q", cfg.Paths.APIBind), err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return NewClient("http://"+net.JoinHostPort(host, port), cfg.Paths.APIToken, nil), nil
}

// Status returns the daemon's runtime status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Devices returns the devices the daemon was started with.
func (c *Client) Devices(ctx context.Context) (*api.DevicesResponse, error) {
	var out api.DevicesResponse
	if err := c.do(ctx, http.MethodGet, "/api/devices", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sync asks the daemon to sync now and waits for the report.
func (c *Client) Sync(ctx context.Context, req api.SyncRequest) (*api.SyncReport, error) {
	var out api.SyncReport
	if err := c.do(ctx, http.MethodPost, "/api/sync", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w: %s", ErrDaemonNotRunning, c.baseURL)
		}
		return fmt.Errorf("daemon request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		message := strings.TrimSpace(apiErr.Error)
		if message == "" {
			message = resp.Status
		}
		marker := services.ErrTransient
		switch resp.StatusCode {
		case http.StatusNotFound:
			marker = services.ErrNotFound
		case http.StatusBadRequest:
			marker = services.ErrValidation
		case http.StatusUnauthorized:
			marker = services.ErrConfiguration
			message = "daemon rejected the API token; check paths.api_token"
		}
		return services.Wrap(marker, "daemonctl", method+" "+path, message, nil)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
}

// Launch starts a detached punchsync daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForDaemon polls the API until the daemon reports running.
func WaitForDaemon(ctx context.Context, c *Client, timeout time.Duration) (*api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := c.Status(ctx)
		if err == nil && status.Running {
			return status, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Stop sends SIGTERM to the daemon and force-kills it when it is still
// answering after gracePeriod.
func Stop(ctx context.Context, c *Client, gracePeriod time.Duration) (StopResult, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return StopResult{}, err
	}
	pid := status.PID
	if pid <= 0 {
		return StopResult{}, fmt.Errorf("daemon reported no pid")
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if waitForShutdown(ctx, c, gracePeriod) {
		return result, nil
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	return result, nil
}

func waitForShutdown(ctx context.Context, c *Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := c.Status(ctx); errors.Is(err, ErrDaemonNotRunning) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
	return false
}
