// Package errors provides the error vocabulary shared by runctl packages.
//
// Three domain error types cover the subsystems that can fail:
//   - LaunchError: a process could not be started for a slot or project root
//   - RunError: an operation on a tracked run failed
//   - QueueError: reading, writing, or mutating the analyze queue failed
//
// Two semantic types cover lookup and input failures:
//   - NotFoundError
//   - ValidationError
//
// All types unwrap to their cause and match the package sentinels, so callers
// can branch with errors.Is on ErrRunNotFound, ErrInvalidSlot, and friends:
//
//	err := errors.NewLaunchError("spawn rejected", errors.ErrInvalidProjectRoot).
//		WithSlot(2).
//		WithProjectRoot(root)
//	if errors.Is(err, errors.ErrInvalidProjectRoot) { ... }
//
// Only launch and stop failures are meant for the user; everything else is
// logged. IsUserFacing reports which is which.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard library helpers, so callers need only one errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity classifies how loudly an error should be reported.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Run and launch sentinels.
var (
	ErrRunNotFound        = New("run not found")
	ErrRunAlreadyExists   = New("run already exists")
	ErrInvalidSlot        = New("slot must be 1, 2, or 3")
	ErrInvalidProjectRoot = New("invalid project root")
	ErrSpawnFailed        = New("process spawn failed")
)

// Queue and output sentinels.
var (
	ErrQueueCorrupted = New("analyze queue corrupted")
	ErrJobNotFound    = New("analyze job not found")
	ErrPathNotAllowed = New("output path not allowed")
)

// General sentinels.
var (
	ErrTimeout      = New("operation timed out")
	ErrCanceled     = New("operation canceled")
	ErrInvalidInput = New("invalid input")
)

// RunctlError is implemented by every error type in this package.
type RunctlError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, context []string) string {
	prefix := kind
	if len(context) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(context, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// LaunchError reports a process that could not be started.
// It is always user-facing.
type LaunchError struct {
	baseError
	Slot        int
	ProjectRoot string
}

// NewLaunchError creates a LaunchError.
func NewLaunchError(message string, cause error) *LaunchError {
	return &LaunchError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithSlot records the slot the launch targeted.
func (e *LaunchError) WithSlot(slot int) *LaunchError {
	e.Slot = slot
	return e
}

// WithProjectRoot records the project root the launch targeted.
func (e *LaunchError) WithProjectRoot(root string) *LaunchError {
	e.ProjectRoot = root
	return e
}

func (e *LaunchError) Error() string {
	var ctx []string
	if e.Slot != 0 {
		ctx = append(ctx, fmt.Sprintf("slot=%d", e.Slot))
	}
	if e.ProjectRoot != "" {
		ctx = append(ctx, fmt.Sprintf("root=%s", e.ProjectRoot))
	}
	return e.format("launch error", ctx)
}

// RunError reports a failed operation on a tracked run.
type RunError struct {
	baseError
	RunID string
}

// NewRunError creates a RunError.
func NewRunError(message string, cause error) *RunError {
	return &RunError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithRunID records the run the operation targeted.
func (e *RunError) WithRunID(id string) *RunError {
	e.RunID = id
	return e
}

// WithUserFacing overrides whether the message may be shown to the user.
func (e *RunError) WithUserFacing(v bool) *RunError {
	e.userFacing = v
	return e
}

func (e *RunError) Error() string {
	var ctx []string
	if e.RunID != "" {
		ctx = append(ctx, fmt.Sprintf("run=%s", e.RunID))
	}
	return e.format("run error", ctx)
}

// QueueError reports a failure reading or mutating the analyze queue.
// Queue failures are logged, not shown.
type QueueError struct {
	baseError
	JobID     string
	QueuePath string
}

// NewQueueError creates a QueueError.
func NewQueueError(message string, cause error) *QueueError {
	return &QueueError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithJobID records the job involved.
func (e *QueueError) WithJobID(id string) *QueueError {
	e.JobID = id
	return e
}

// WithQueuePath records the queue file involved.
func (e *QueueError) WithQueuePath(path string) *QueueError {
	e.QueuePath = path
	return e
}

// WithRetryable marks the error as transient.
func (e *QueueError) WithRetryable(r bool) *QueueError {
	e.retryable = r
	return e
}

func (e *QueueError) Error() string {
	var ctx []string
	if e.JobID != "" {
		ctx = append(ctx, fmt.Sprintf("job=%s", e.JobID))
	}
	if e.QueuePath != "" {
		ctx = append(ctx, fmt.Sprintf("queue=%s", e.QueuePath))
	}
	return e.format("queue error", ctx)
}

// NotFoundError reports a missing resource by kind and id.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a NotFoundError. Pass a sentinel such as
// ErrRunNotFound via WithCause so errors.Is keeps working.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s %q not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause attaches the underlying error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string {
	return e.baseError.Error()
}

// ValidationError reports invalid caller input.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			cause:      ErrInvalidInput,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField records the offending field name.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue records the offending value.
func (e *ValidationError) WithValue(v any) *ValidationError {
	e.Value = v
	return e
}

// WithCause replaces the default ErrInvalidInput cause. The result still
// matches ErrInvalidInput.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = Join(cause, ErrInvalidInput)
	return e
}

func (e *ValidationError) Error() string {
	var ctx []string
	if e.Field != "" {
		ctx = append(ctx, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		ctx = append(ctx, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := "validation error"
	if len(ctx) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(ctx, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RunctlError
	if As(err, &re) {
		return re.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// IsUserFacing reports whether err's message may be shown to the user.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var re RunctlError
	if As(err, &re) {
		return re.IsUserFacing()
	}
	return false
}

// GetSeverity returns err's severity, or SeverityError for foreign errors.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var re RunctlError
	if As(err, &re) {
		return re.Severity()
	}
	return SeverityError
}

// Wrap prefixes err with message, preserving the chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
