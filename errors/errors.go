package errors

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldViolation describes one invalid input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the structured error returned by every core operation.
type Error struct {
	code       ErrorCode
	category   ErrorCategory
	message    string
	cause      error
	violations []FieldViolation
	metadata   map[string]string
	taskID     string
	timestamp  time.Time
}

var (
	_ error            = (*Error)(nil)
	_ json.Marshaler   = (*Error)(nil)
	_ json.Unmarshaler = (*Error)(nil)
)

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

// Retryable reports whether the caller may retry.
func (e *Error) Retryable() bool {
	return e.category.IsRetryable()
}

// Message returns the message without the cause, safe to show to clients.
func (e *Error) Message() string {
	return e.message
}

// Violations returns the field violations of a validation error.
func (e *Error) Violations() []FieldViolation {
	if len(e.violations) == 0 {
		return nil
	}
	out := make([]FieldViolation, len(e.violations))
	copy(out, e.violations)
	return out
}

// Fields returns the offending field names joined with ", ".
func (e *Error) Fields() string {
	names := make([]string, 0, len(e.violations))
	for _, v := range e.violations {
		names = append(names, v.Field)
	}
	return strings.Join(names, ", ")
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// TaskID returns the related task ID, if set.
func (e *Error) TaskID() string {
	return e.taskID
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// errorJSON is the wire representation. The cause is deliberately absent.
type errorJSON struct {
	Code       ErrorCode        `json:"code"`
	Category   ErrorCategory    `json:"category"`
	Message    string           `json:"message"`
	Violations []FieldViolation `json:"violations,omitempty"`
	TaskID     string           `json:"task_id,omitempty"`
	Timestamp  string           `json:"timestamp,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Error) MarshalJSON() ([]byte, error) {
	j := errorJSON{
		Code:       e.code,
		Category:   e.category,
		Message:    e.message,
		Violations: e.violations,
		TaskID:     e.taskID,
	}
	if !e.timestamp.IsZero() {
		j.Timestamp = e.timestamp.Format(time.RFC3339Nano)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Error) UnmarshalJSON(data []byte) error {
	var j errorJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.code = j.Code
	e.category = j.Category
	if e.category == "" {
		e.category = j.Code.DefaultCategory()
	}
	e.message = j.Message
	e.violations = j.Violations
	e.taskID = j.TaskID
	if j.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, j.Timestamp); err == nil {
			e.timestamp = t
		}
	}
	return nil
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithTaskID sets the related task ID.
func WithTaskID(id string) Option {
	return func(e *Error) {
		e.taskID = id
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

// WithTimestamp sets a custom timestamp.
func WithTimestamp(t time.Time) Option {
	return func(e *Error) {
		e.timestamp = t
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

// FromCode creates an error with the default description for the code.
func FromCode(code ErrorCode, opts ...Option) *Error {
	return New(code, code.Description(), opts...)
}

// NotFound creates a not found error.
func NotFound(message string, opts ...Option) *Error {
	return New(ErrCodeNotFound, message, opts...)
}

// TaskNotFound creates the not found error for a task identifier.
func TaskNotFound(id string) *Error {
	return New(ErrCodeNotFound, "task not found: "+id, WithTaskID(id))
}

// VersionConflict creates the error returned when the expected version does
// not match the stored one.
func VersionConflict(id string, expected, actual int64) *Error {
	return New(ErrCodeVersionConflict, "task was modified by another request",
		WithTaskID(id),
		WithMetadata("expected_version", fmt.Sprint(expected)),
		WithMetadata("current_version", fmt.Sprint(actual)),
	)
}

// Validation creates a validation error enumerating every violation.
// The message joins "field: message" pairs with "; ".
func Validation(violations ...FieldViolation) *Error {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	e := New(ErrCodeValidation, strings.Join(parts, "; "))
	e.violations = append([]FieldViolation(nil), violations...)
	return e
}

// InvalidField creates a validation error for a single field.
func InvalidField(field, message string) *Error {
	return Validation(FieldViolation{Field: field, Message: message})
}

// Conflict creates a conflict error.
func Conflict(message string, opts ...Option) *Error {
	return New(ErrCodeConflict, message, opts...)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string, opts ...Option) *Error {
	return New(ErrCodeUnauthorized, message, opts...)
}

// RateLimited creates a rate limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimit, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
