package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different categories of errors in the generator.
type ErrorType string

const (
	ErrorTypeConfig       ErrorType = "CONFIG"
	ErrorTypeHeader       ErrorType = "HEADER"
	ErrorTypeParse        ErrorType = "PARSE"
	ErrorTypeRange        ErrorType = "RANGE"
	ErrorTypeDivisibility ErrorType = "DIVISIBILITY"
	ErrorTypeAlgorithm    ErrorType = "ALGORITHM"
	ErrorTypeMissingDP    ErrorType = "MISSING_DP"
	ErrorTypeBridge       ErrorType = "BRIDGE"
	ErrorTypeSink         ErrorType = "SINK"
)

// Scope says how much work an error invalidates.
type Scope int

const (
	// ScopeRun aborts the whole generation run.
	ScopeRun Scope = iota
	// ScopeIteration aborts the iteration whose tree is being built.
	ScopeIteration
	// ScopeGroup skips the offending node or group; traversal continues.
	ScopeGroup
)

// String returns the scope name used in log attributes.
func (s Scope) String() string {
	switch s {
	case ScopeRun:
		return "run"
	case ScopeIteration:
		return "iteration"
	case ScopeGroup:
		return "group"
	default:
		return "unknown"
	}
}

// AppError represents a structured generator error with context.
type AppError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Operation string    `json:"operation"`
	Line      int       `json:"line,omitempty"`
	Cause     error     `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

// Unwrap returns the underlying cause for error chain compatibility.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Scope returns how far the error propagates.
func (e *AppError) Scope() Scope {
	switch e.Type {
	case ErrorTypeParse, ErrorTypeRange:
		return ScopeIteration
	case ErrorTypeDivisibility, ErrorTypeAlgorithm:
		return ScopeGroup
	default:
		return ScopeRun
	}
}

func newError(t ErrorType, operation, message string, cause error) *AppError {
	return &AppError{
		Type:      t,
		Message:   message,
		Operation: operation,
		Cause:     cause,
	}
}

// NewConfigError creates a new configuration error.
func NewConfigError(operation, message string, cause error) *AppError {
	return newError(ErrorTypeConfig, operation, message, cause)
}

// NewHeaderError creates an error for a malformed model/device/iteration line.
func NewHeaderError(operation, message string, cause error) *AppError {
	return newError(ErrorTypeHeader, operation, message, cause)
}

// NewParseError creates an error for a malformed grammar body line.
func NewParseError(operation string, line int, message string, cause error) *AppError {
	e := newError(ErrorTypeParse, operation, message, cause)
	e.Line = line
	return e
}

// NewRangeError creates an error for a field outside its allowed range.
func NewRangeError(operation string, line int, message string, cause error) *AppError {
	e := newError(ErrorTypeRange, operation, message, cause)
	e.Line = line
	return e
}

// NewDivisibilityError creates an error for host partitioning arithmetic.
func NewDivisibilityError(operation, message string) *AppError {
	return newError(ErrorTypeDivisibility, operation, message, nil)
}

// NewAlgorithmError creates an error for a broken internal pattern invariant.
func NewAlgorithmError(operation, message string) *AppError {
	return newError(ErrorTypeAlgorithm, operation, message, nil)
}

// NewMissingDPError creates an error for a tree without a DP1 node.
func NewMissingDPError(operation, message string) *AppError {
	return newError(ErrorTypeMissingDP, operation, message, nil)
}

// NewBridgeError creates an error for an iteration that cannot be chained.
func NewBridgeError(operation, message string) *AppError {
	return newError(ErrorTypeBridge, operation, message, nil)
}

// NewSinkError creates an error for a failed trace write.
func NewSinkError(operation, message string, cause error) *AppError {
	return newError(ErrorTypeSink, operation, message, cause)
}

// IsType returns true if err, or anything it wraps, is an AppError of type t.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// IsFatal returns true if the error must abort the run.
func IsFatal(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Scope() != ScopeGroup
	}
	return err != nil
}

// IsLocal returns true if the error only invalidates one node or group.
func IsLocal(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Scope() == ScopeGroup
	}
	return false
}

// WrapError wraps an existing error with additional context, keeping its type.
func WrapError(err error, operation, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Type:      appErr.Type,
			Message:   message,
			Operation: operation,
			Cause:     err,
		}
	}

	return &AppError{
		Type:      ErrorTypeConfig,
		Message:   message,
		Operation: operation,
		Cause:     err,
	}
}
