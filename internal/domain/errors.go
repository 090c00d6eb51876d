package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Shared sentinels.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError marks user-correctable input problems (malformed url,
// unknown device). Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConfigError marks a misconfiguration, such as an unknown throttling
// profile name. Unknown names must fail fast rather than silently default.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// ConflictError marks a duplicate-constraint violation surfaced to callers
// as HTTP 409.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// ResourceLaunchError means the browser instance could not be started:
// missing runtime, resource exhaustion, port conflict. Retryable.
type ResourceLaunchError struct {
	Err error
}

func (e *ResourceLaunchError) Error() string {
	return fmt.Sprintf("failed to launch browser: %v", e.Err)
}

func (e *ResourceLaunchError) Unwrap() error { return e.Err }

// AuditExecutionError means the audit itself failed: target unreachable,
// navigation timeout, engine-internal error. Retryable a bounded number of
// times. Timeout distinguishes deadline expiry from other failures.
type AuditExecutionError struct {
	Err     error
	Timeout bool
}

func (e *AuditExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("audit timed out: %v", e.Err)
	}
	return fmt.Sprintf("audit failed: %v", e.Err)
}

func (e *AuditExecutionError) Unwrap() error { return e.Err }

// MissingMetricError means the engine returned a report without the
// performance category or one of the required audits. Indicates an
// engine/version mismatch; not retryable.
type MissingMetricError struct {
	Audits []string
}

func (e *MissingMetricError) Error() string {
	return "report is missing required audits: " + strings.Join(e.Audits, ", ")
}

// InvalidTransitionError is a programming or ordering defect: a test was
// asked to move backwards or out of a terminal state. Should never surface
// to a user.
type InvalidTransitionError struct {
	TestID int64
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("test %d: invalid transition %s -> %s", e.TestID, e.From, e.To)
}

// Retryable classifies errors for the job dispatcher. Launch failures and
// execution failures are transient; validation and incomplete-report
// errors are not.
func Retryable(err error) bool {
	var launch *ResourceLaunchError
	var exec *AuditExecutionError
	return errors.As(err, &launch) || errors.As(err, &exec)
}
