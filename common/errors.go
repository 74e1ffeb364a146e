package common

import (
	"fmt"
	"strings"
)

// OperationError carries enough context for a failure to be diagnosed from
// last_error alone: which operation was attempted, which component owns
// it, which resource was involved, and what the underlying cause was.
// Every package boundary in this module wraps its errors this way instead
// of a bare fmt.Errorf, so nothing ever surfaces as a plain "an error
// occurred".
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to %s", e.Operation)
	if e.Component != "" {
		fmt.Fprintf(&b, ", component: %s", e.Component)
	}
	if e.Resource != "" {
		fmt.Fprintf(&b, ", resource: %s", e.Resource)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ", cause: %s", e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal "failed to <action>: <cause>" error for a
// single action with an optional cause, wrapping cause for errors.Is/As.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a fully-populated OperationError.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{Operation: operation, Component: component, Resource: resource, Cause: cause}
}

// Wrapf prepends a formatted message to err, or returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DatabaseError wraps cause as an OperationError scoped to the "database"
// component.
func DatabaseError(operation string, cause error) error {
	return &OperationError{Operation: operation, Component: "database", Cause: cause}
}

// NetworkError wraps cause as an OperationError scoped to the "network"
// component, naming the endpoint that was being reached.
func NetworkError(operation, endpoint string, cause error) error {
	return &OperationError{Operation: operation, Component: "network", Resource: endpoint, Cause: cause}
}

// ValidationError reports a single field-level validation failure.
func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

// ConfigurationError reports an invalid or missing configuration setting.
func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

// TimeoutError reports an operation that exceeded its deadline.
func TimeoutError(operation, duration string) error {
	return fmt.Errorf("timeout while %s after %s", operation, duration)
}

// AuthenticationError reports a failed authentication attempt.
func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

// AuthorizationError reports a denied authorization check.
func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

// ParseError reports a failure to parse a resource in a given format.
func ParseError(resource, format string, cause error) error {
	return &OperationError{Operation: fmt.Sprintf("parse %s as %s", resource, format), Cause: cause}
}

// retryableSubstrings are the markers IsRetryable checks for in an error's
// message. This is a deliberately simple string match rather than a typed
// error hierarchy, because the errors it has to classify originate from
// several different libraries (amqp, redis, net/http, gorm) that don't
// share a common retryable-error type.
var retryableSubstrings = []string{
	"timeout",
	"connection refused",
	"unavailable",
	"temporarily",
	"deadline exceeded",
}

// IsRetryable reports whether err looks like a transient failure worth
// retrying, based on common substrings across network/database client
// errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Chain joins multiple non-nil errors into one, skipping nils. Returns nil
// if every error is nil, the single error itself if exactly one is
// non-nil, and a combined error with a count-style prefix otherwise.
func Chain(errs ...error) error {
	var msgs []string
	var last error
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
			last = err
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		return last
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
