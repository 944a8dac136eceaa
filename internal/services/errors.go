package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConnection        = errors.New("connection error")
	ErrDriverUnavailable = errors.New("device driver unavailable")
	ErrValidation        = errors.New("validation error")
	ErrUnmatchedEmployee = errors.New("unmatched employee")
	ErrAggregation       = errors.New("aggregation failure")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrTransient         = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failure may succeed on another attempt.
// Missing drivers, bad configuration, and invalid data never do.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrDriverUnavailable),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// Kind returns a short label for the marker carried by err, used in reports
// and log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDriverUnavailable):
		return "driver_unavailable"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnmatchedEmployee):
		return "unmatched_employee"
	case errors.Is(err, ErrAggregation):
		return "aggregation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
