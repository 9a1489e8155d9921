package errors

// ErrorCategory classifies errors by their retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates failures where a retry may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures the caller must fix.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryInternal indicates bugs or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies a specific failure.
type ErrorCode string

const (
	ErrCodeValidation    ErrorCode = "VALIDATION"         // Malformed definition or update
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"     // Name already registered
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"          // Unknown resource id
	ErrCodeUnhealthy     ErrorCode = "UNHEALTHY_RESOURCE" // Initial health probe failed
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"      // Transition not allowed from current status
	ErrCodeDrainTimeout  ErrorCode = "DRAIN_TIMEOUT"      // Active work did not finish in time

	ErrCodeStateBackend ErrorCode = "STATE_BACKEND" // Persistence failure
	ErrCodeLedger       ErrorCode = "LEDGER"        // Audit ledger failure
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Caller context ended
	ErrCodeClosed       ErrorCode = "CLOSED"        // Registry stopped
	ErrCodeInternal     ErrorCode = "INTERNAL"      // Unexpected internal error
	ErrCodePanic        ErrorCode = "PANIC"         // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeValidation, ErrCodeDuplicateName, ErrCodeNotFound, ErrCodeUnhealthy,
		ErrCodeInvalidState, ErrCodeCanceled, ErrCodeClosed:
		return CategoryPermanent
	case ErrCodeDrainTimeout, ErrCodeStateBackend, ErrCodeLedger:
		return CategoryTransient
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeValidation:    "invalid resource definition",
	ErrCodeDuplicateName: "resource name already registered",
	ErrCodeNotFound:      "resource not found",
	ErrCodeUnhealthy:     "resource failed health check",
	ErrCodeInvalidState:  "operation not allowed in current status",
	ErrCodeDrainTimeout:  "drain timeout exceeded",
	ErrCodeStateBackend:  "state backend failure",
	ErrCodeLedger:        "ledger failure",
	ErrCodeCanceled:      "operation canceled",
	ErrCodeClosed:        "registry stopped",
	ErrCodeInternal:      "internal error",
	ErrCodePanic:         "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
