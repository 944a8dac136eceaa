package syncer

import (
	"context"
	"fmt"

	"punchsync/internal/logging"
	"punchsync/internal/services"
	"punchsync/internal/terminal"
)

// ConnectionResult reports a one-off terminal probe.
type ConnectionResult struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	DeviceInfo *terminal.Info `json:"device_info,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
}

// TestConnection connects once without retries, reads the terminal's
// metadata, and disconnects.
func (o *Orchestrator) TestConnection(ctx context.Context, host string, port int) ConnectionResult {
	if port <= 0 {
		port = o.defaultPort
	}
	client := terminal.NewClient(o.driver, "", host, port, o.opts)
	defer client.Disconnect(ctx)

	if err := client.Connect(ctx, false); err != nil {
		return ConnectionResult{
			Message:   fmt.Sprintf("could not connect to %s", client.Address()),
			Error:     err.Error(),
			ErrorKind: services.Kind(err),
		}
	}
	info, err := client.Info(ctx)
	if err != nil {
		return ConnectionResult{
			Message:   fmt.Sprintf("connected to %s but could not read device info", client.Address()),
			Error:     err.Error(),
			ErrorKind: services.Kind(err),
		}
	}
	o.logger.Info("terminal connection test passed",
		logging.String(logging.FieldAddress, client.Address()),
		logging.String("serial", info.Serial),
	)
	return ConnectionResult{
		Success:    true,
		Message:    fmt.Sprintf("connected to %s", client.Address()),
		DeviceInfo: info,
	}
}
