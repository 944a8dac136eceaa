package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"punchsync/internal/config"
	"punchsync/internal/logging"
	"punchsync/internal/services"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultRetryDelay     = 2 * time.Second
)

// Options tunes connection behaviour.
type Options struct {
	ConnectTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
	// Location anchors naive terminal timestamps for range filtering.
	Location *time.Location
	Logger   *slog.Logger
	// Sleep waits between connect attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// OptionsFromConfig derives client options from the devices section.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	opts := Options{Logger: logger}
	if cfg == nil {
		return opts
	}
	opts.ConnectTimeout = cfg.ConnectTimeout()
	opts.MaxAttempts = cfg.Devices.MaxRetries
	opts.RetryDelay = cfg.RetryDelay()
	opts.Location = cfg.Location()
	return opts
}

// Client manages one terminal connection.
type Client struct {
	driver Driver
	name   string
	host   string
	port   int
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	session Session
}

// NewClient constructs a client for the terminal at host:port. An empty name
// defaults to host:port.
func NewClient(driver Driver, name, host string, port int, opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	address := net.JoinHostPort(host, strconv.Itoa(port))
	if strings.TrimSpace(name) == "" {
		name = address
	}
	logger := logging.NewComponentLogger(opts.Logger, "terminal").With(
		logging.String(logging.FieldDevice, name),
		logging.String(logging.FieldAddress, address),
	)
	return &Client{driver: driver, name: name, host: host, port: port, opts: opts, logger: logger}
}

// Name returns the terminal's configured name.
func (c *Client) Name() string { return c.name }

// Address returns host:port.
func (c *Client) Address() string { return net.JoinHostPort(c.host, strconv.Itoa(c.port)) }

// Connected reports whether a session is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Connect opens a session and disables the terminal's keypad and sensor for
// the transfer. With allowRetry it makes up to MaxAttempts attempts separated
// by a fixed RetryDelay; otherwise it tries once. A missing driver is never
// retried.
func (c *Client) Connect(ctx context.Context, allowRetry bool) error {
	if c.Connected() {
		return nil
	}
	if c.driver == nil {
		err := services.Wrap(ErrDriverUnavailable, "terminal", "connect", "no terminal driver configured", nil)
		logging.ErrorWithContext(c.logger, "terminal driver unavailable", "driver_unavailable",
			logging.String(logging.FieldErrorHint, "set devices.driver in the config"),
		)
		return err
	}

	attempts := 1
	if allowRetry {
		attempts = c.opts.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("connecting to terminal",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
		)
		session, err := c.open(ctx)
		if err == nil {
			c.mu.Lock()
			c.session = session
			c.mu.Unlock()
			c.logger.Info("terminal connected", logging.String(logging.FieldEventType, "terminal_connected"))
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrDriverUnavailable) {
			logging.ErrorWithContext(c.logger, "terminal driver unavailable", "driver_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the device gateway supports this terminal"),
			)
			return services.Wrap(ErrDriverUnavailable, "terminal", "connect", c.name, err)
		}
		c.logger.Warn("connect attempt failed",
			logging.Int("attempt", attempt),
			logging.Error(err),
		)
		if attempt < attempts {
			if err := c.opts.Sleep(ctx, c.opts.RetryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	logging.ErrorWithContext(c.logger, "terminal unreachable", "terminal_unreachable",
		logging.Int("attempts", attempts),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "check the terminal is powered and reachable on the network"),
	)
	return services.Wrap(services.ErrConnection, "terminal", "connect",
		fmt.Sprintf("%s unreachable after %d attempt(s)", c.Address(), attempts), lastErr)
}

func (c *Client) open(ctx context.Context) (Session, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	session, err := c.driver.Connect(attemptCtx, c.host, c.port, c.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	if err := session.DisableDevice(attemptCtx); err != nil {
		if cerr := session.Disconnect(attemptCtx); cerr != nil {
			c.logger.Debug("disconnect after failed disable", logging.Error(cerr))
		}
		return nil, fmt.Errorf("disable terminal: %w", err)
	}
	return session, nil
}

// Disconnect re-enables the terminal and closes the session. It never fails
// and is a no-op when not connected.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session == nil {
		return
	}

	// Restore the terminal even when the caller's context is already done.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ConnectTimeout)
	defer cancel()

	if err := session.EnableDevice(cleanupCtx); err != nil {
		logging.WarnWithContext(c.logger, "failed to re-enable terminal", "terminal_enable_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "re-enable the terminal from its admin menu if the keypad stays locked"),
			logging.String(logging.FieldImpact, "terminal may reject swipes until restarted"),
		)
	}
	if err := session.Disconnect(cleanupCtx); err != nil {
		c.logger.Warn("terminal disconnect failed", logging.Error(err))
		return
	}
	c.logger.Info("terminal disconnected")
}

func (c *Client) current() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Info reads terminal metadata. It returns nil when not connected.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	session := c.current()
	if session == nil {
		c.logger.Warn("info requested on disconnected terminal")
		return nil, nil
	}
	info, err := session.Info(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrConnection, "terminal", "info", c.name, err)
	}
	info.Name = c.name
	info.Host = c.host
	info.Port = c.port
	return &info, nil
}

// Punches returns the terminal buffer filtered to [since, until]. Either
// bound may be nil. The filter runs client side because terminals only
// return their whole buffer.
func (c *Client) Punches(ctx context.Context, since, until *time.Time) ([]Record, error) {
	session := c.current()
	if session == nil {
		c.logger.Warn("punches requested on disconnected terminal")
		return nil, nil
	}
	records, err := session.Attendance(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrConnection, "terminal", "fetch attendance", c.name, err)
	}
	c.logger.Info("fetched terminal buffer", logging.Int("records", len(records)))
	if since == nil && until == nil {
		return records, nil
	}

	filtered := records[:0:0]
	for _, rec := range records {
		if InRange(Anchor(rec, c.opts.Location), since, until) {
			filtered = append(filtered, rec)
		}
	}
	c.logger.Info("filtered terminal buffer",
		logging.Int("records", len(filtered)),
		logging.Int("dropped", len(records)-len(filtered)),
	)
	return filtered, nil
}

// InRange reports whether ts lies within the inclusive [since, until] range.
// Zero timestamps are kept so the validator can reject them.
func InRange(ts time.Time, since, until *time.Time) bool {
	if ts.IsZero() {
		return true
	}
	if since != nil && ts.Before(*since) {
		return false
	}
	if until != nil && ts.After(*until) {
		return false
	}
	return true
}

// Users lists users enrolled on the terminal. It returns nil when not
// connected.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	session := c.current()
	if session == nil {
		c.logger.Warn("users requested on disconnected terminal")
		return nil, nil
	}
	users, err := session.Users(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrConnection, "terminal", "list users", c.name, err)
	}
	c.logger.Info("fetched terminal users", logging.Int("users", len(users)))
	return users, nil
}

// EnrollEmployee writes an ordinary (non-admin) user for the employee. The
// terminal slot is the numeric device user id and the name is cut to what
// terminals store.
func (c *Client) EnrollEmployee(ctx context.Context, deviceUserID, name string) error {
	deviceUserID = strings.TrimSpace(deviceUserID)
	uid, err := strconv.Atoi(deviceUserID)
	if err != nil || uid <= 0 {
		return services.Wrap(services.ErrValidation, "terminal", "enroll",
			fmt.Sprintf("device user id %q is not a positive number", deviceUserID), nil)
	}
	session := c.current()
	if session == nil {
		return services.Wrap(services.ErrConnection, "terminal", "enroll", "terminal not connected", nil)
	}
	user := User{
		UID:       uid,
		UserID:    deviceUserID,
		Name:      TruncateName(name),
		Privilege: 0,
	}
	if err := session.SetUser(ctx, user); err != nil {
		return services.Wrap(services.ErrConnection, "terminal", "enroll", c.name, err)
	}
	c.logger.Info("enrolled user",
		logging.String(logging.FieldDeviceUserID, deviceUserID),
		logging.String("name", user.Name),
	)
	return nil
}

// RemoveUser deletes the user in slot uid.
func (c *Client) RemoveUser(ctx context.Context, uid int) error {
	session := c.current()
	if session == nil {
		return services.Wrap(services.ErrConnection, "terminal", "remove user", "terminal not connected", nil)
	}
	if err := session.DeleteUser(ctx, uid); err != nil {
		return services.Wrap(services.ErrConnection, "terminal", "remove user", c.name, err)
	}
	c.logger.Info("removed user", logging.Int("uid", uid))
	return nil
}

// TruncateName limits name to MaxUserNameLength runes.
func TruncateName(name string) string {
	name = strings.TrimSpace(name)
	runes := []rune(name)
	if len(runes) <= MaxUserNameLength {
		return name
	}
	return string(runes[:MaxUserNameLength])
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
