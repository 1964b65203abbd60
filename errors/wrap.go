package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already an *Error, the code, category and violations are kept.
// Context errors map to TIMEOUT and CANCELED; anything else becomes INTERNAL_ERROR.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var taskErr *Error
	if errors.As(err, &taskErr) {
		wrapped := &Error{
			code:       taskErr.code,
			category:   taskErr.category,
			message:    message,
			cause:      err,
			violations: taskErr.violations,
			metadata:   taskErr.Metadata(),
			taskID:     taskErr.taskID,
			timestamp:  taskErr.timestamp,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// As extracts an *Error from an error chain, or nil.
func As(err error) *Error {
	var taskErr *Error
	if errors.As(err, &taskErr) {
		return taskErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	if taskErr := As(err); taskErr != nil {
		return taskErr.code == code
	}
	return false
}

// IsNotFound reports whether err carries NOT_FOUND.
func IsNotFound(err error) bool {
	return Is(err, ErrCodeNotFound)
}

// IsVersionConflict reports whether err carries VERSION_CONFLICT.
func IsVersionConflict(err error) bool {
	return Is(err, ErrCodeVersionConflict)
}

// IsValidation reports whether err carries VALIDATION_ERROR.
func IsValidation(err error) bool {
	return Is(err, ErrCodeValidation)
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	if taskErr := As(err); taskErr != nil {
		return taskErr.Retryable()
	}
	return false
}

// Code extracts the error code from an error, if available.
// Plain errors report INTERNAL_ERROR so callers always have a code to map.
func Code(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if taskErr := As(err); taskErr != nil {
		return taskErr.code
	}
	return ErrCodeInternal
}

// Cause returns the root cause of the error chain.
func Cause(err error) error {
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := unwrapper.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}
