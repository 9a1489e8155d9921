package errors

import (
	"fmt"
	"time"
)

// Error is a structured failure carrying a code, category and resource context.
type Error struct {
	code      ErrorCode
	category  ErrorCategory
	message   string
	cause     error
	metadata  map[string]string
	timestamp time.Time
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable reports whether the failed operation may succeed on retry.
func (e *Error) Retryable() bool {
	return e.category.IsRetryable()
}

// Message returns the message without the cause.
func (e *Error) Message() string {
	return e.message
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// ResourceID returns the id of the resource involved, if known.
func (e *Error) ResourceID() string {
	return e.metadata[MetaResourceID]
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// Metadata keys set by the constructors below.
const (
	MetaResourceID = "resource_id"
	MetaName       = "name"
	MetaStatus     = "status"
	MetaReason     = "reason"
	MetaField      = "field"
)

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCategory overrides the default category.
func WithCategory(cat ErrorCategory) Option {
	return func(e *Error) {
		e.category = cat
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithResourceID records the id of the resource involved.
func WithResourceID(id string) Option {
	return WithMetadata(MetaResourceID, id)
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Validation reports a malformed field in a definition or update.
func Validation(field, message string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata(MetaField, field)}, opts...)
	return New(ErrCodeValidation, fmt.Sprintf("invalid %s: %s", field, message), opts...)
}

// DuplicateName reports a name collision.
func DuplicateName(name string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata(MetaName, name)}, opts...)
	return New(ErrCodeDuplicateName, fmt.Sprintf("resource name %q already registered", name), opts...)
}

// NotFound reports an operation on an unknown resource id.
func NotFound(id string, opts ...Option) *Error {
	opts = append([]Option{WithResourceID(id)}, opts...)
	return New(ErrCodeNotFound, fmt.Sprintf("resource %s not found", id), opts...)
}

// Unhealthy reports a failed initial health probe.
func Unhealthy(name, reason string, opts ...Option) *Error {
	opts = append([]Option{WithMetadata(MetaName, name), WithMetadata(MetaReason, reason)}, opts...)
	return New(ErrCodeUnhealthy, fmt.Sprintf("resource %q failed health check: %s", name, reason), opts...)
}

// InvalidState reports an operation not allowed from the current status.
func InvalidState(id, status, op string, opts ...Option) *Error {
	opts = append([]Option{WithResourceID(id), WithMetadata(MetaStatus, status)}, opts...)
	return New(ErrCodeInvalidState, fmt.Sprintf("cannot %s resource %s in status %s", op, id, status), opts...)
}

// DrainTimeout reports a drain that did not complete in time.
func DrainTimeout(id string, timeout time.Duration, opts ...Option) *Error {
	opts = append([]Option{WithResourceID(id), WithMetadata("timeout", timeout.String())}, opts...)
	return New(ErrCodeDrainTimeout, fmt.Sprintf("resource %s did not drain within %s", id, timeout), opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
