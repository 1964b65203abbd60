// Package errors provides the structured failure taxonomy for the task
// service. Every core operation returns either a success value or an *Error
// carrying a machine-readable code that the transport layer translates into a
// protocol response.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: the caller may retry, possibly with fresh state (version conflicts, timeouts)
//   - Permanent: retrying the same request will not help (not found, invalid input)
//   - Resource: throttling or exhaustion (rate limits)
//   - Internal: storage failures and anything unexpected
//
// # Error Codes
//
//   - NOT_FOUND: referenced task or event absent
//   - VERSION_CONFLICT: optimistic version check failed
//   - VALIDATION_ERROR: malformed input, enumerates every violated field
//   - INTERNAL_ERROR: storage unavailable, serialization failure, unexpected fault
//   - And a few collaborator codes (UNAUTHORIZED, RATE_LIMITED, ...)
//
// # Usage
//
//	err := errors.NotFound("task not found: " + id)
//
//	err := errors.Validation(
//	    errors.FieldViolation{Field: "title", Message: "title is required"},
//	)
//
//	if errors.Is(err, errors.ErrCodeVersionConflict) {
//	    // reload and let the caller decide
//	}
//
// # JSON Serialization
//
// Errors marshal to the structured body returned to clients. The cause is
// never serialized so internal details do not leak:
//
//	data, err := json.Marshal(taskErr)
package errors
