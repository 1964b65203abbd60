package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates the request may succeed if retried,
	// for version conflicts only after re-reading the current state.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates throttling or resource exhaustion.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates storage failures, bugs, or corrupted state.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes returned by the core and its collaborators.
const (
	// Core taxonomy
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"        // Task or event does not exist
	ErrCodeVersionConflict ErrorCode = "VERSION_CONFLICT" // Optimistic version check failed
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR" // Malformed or out-of-range input
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"   // Unexpected internal error

	// Storage
	ErrCodeConflict    ErrorCode = "CONFLICT"    // Identifier collision
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Storage temporarily unavailable
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeCanceled    ErrorCode = "CANCELED"    // Caller canceled

	// Collaborators
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED" // Missing or invalid API key
	ErrCodeRateLimit    ErrorCode = "RATE_LIMITED" // Throttle rejected the request
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeVersionConflict, ErrCodeUnavailable, ErrCodeTimeout:
		return CategoryTransient

	case ErrCodeNotFound, ErrCodeValidation, ErrCodeConflict, ErrCodeCanceled, ErrCodeUnauthorized:
		return CategoryPermanent

	case ErrCodeRateLimit:
		return CategoryResource

	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeNotFound:        "resource not found",
	ErrCodeVersionConflict: "resource was modified by another request",
	ErrCodeValidation:      "validation failed",
	ErrCodeInternal:        "an unexpected error occurred",
	ErrCodeConflict:        "conflicting operation",
	ErrCodeUnavailable:     "service temporarily unavailable",
	ErrCodeTimeout:         "operation timed out",
	ErrCodeCanceled:        "operation canceled",
	ErrCodeUnauthorized:    "missing or invalid API key",
	ErrCodeRateLimit:       "too many requests",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
