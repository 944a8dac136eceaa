package logging

import (
	"context"
	"log/slog"

	"punchsync/internal/services"
)

const (
	// FieldComponent names the package that wrote the line.
	FieldComponent = "component"
	// FieldRunID identifies one SyncAll invocation.
	FieldRunID = "run_id"
	// FieldDevice is the configured terminal name.
	FieldDevice = "device"
	// FieldAddress is the terminal host:port.
	FieldAddress = "address"
	// FieldEmployee is the employee code (emp_code).
	FieldEmployee = "employee"
	// FieldDeviceUserID is the user id reported by a terminal.
	FieldDeviceUserID = "device_user_id"
	// FieldDate is a calendar date in the attendance time zone.
	FieldDate = "date"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step on warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID ties log lines to one API request.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if device, ok := services.DeviceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDevice, device))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}
