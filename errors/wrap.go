package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil. An *Error keeps its code and metadata;
// context errors become CANCELED; anything else becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var re *Error
	if errors.As(err, &re) {
		wrapped := &Error{
			code:      re.code,
			category:  re.category,
			message:   message,
			cause:     err,
			metadata:  re.Metadata(),
			timestamp: re.timestamp,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// StateBackend wraps a persistence failure. Context errors keep the CANCELED code.
func StateBackend(err error, op string, opts ...Option) *Error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapWithCode(err, ErrCodeCanceled, "state "+op, opts...)
	}
	return WrapWithCode(err, ErrCodeStateBackend, "state "+op, opts...)
}

// Ledger wraps an audit ledger failure.
func Ledger(err error, opts ...Option) *Error {
	return WrapWithCode(err, ErrCodeLedger, "ledger record", opts...)
}

// Canceled wraps a context error raised while waiting on a resource.
func Canceled(err error, opts ...Option) *Error {
	return WrapWithCode(err, ErrCodeCanceled, "operation canceled", opts...)
}

// As extracts the first *Error in the chain, or nil.
func As(err error) *Error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return nil
}

// Is checks if the outermost *Error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	if re := As(err); re != nil {
		return re.code == code
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	if re := As(err); re != nil {
		return re.Retryable()
	}
	return false
}

// CodeOf extracts the error code, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	if re := As(err); re != nil {
		return re.code
	}
	return ""
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
