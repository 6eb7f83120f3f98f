package utils

import "fmt"

// AppError annotates a failure with the service operation that produced it.
// The operation name gives API handlers and logs a stable identifier while
// the wrapped cause stays reachable through errors.Is and errors.As.
type AppError struct {
	Op  string // operation that failed, e.g. "services.Investigate"
	Msg string // short human-readable summary
	Err error  // underlying cause, may be nil
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Msg
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

// Unwrap exposes the underlying cause to the errors package.
func (e *AppError) Unwrap() error { return e.Err }

// NewAppError wraps err with an operation tag and summary message.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
