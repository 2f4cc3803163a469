package server

import (
	"errors"
	"fmt"

	"github.com/joshdurbin/strava-goals/internal/stats"
)

// ErrorCode classifies MCP tool errors for structured error handling
type ErrorCode string

const (
	// ErrInvalidInput indicates invalid or malformed input parameters
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrDatabaseError indicates a database operation failed
	ErrDatabaseError ErrorCode = "DATABASE_ERROR"
	// ErrInternalError indicates an unexpected internal error
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// ToolError represents a structured tool error with code, message, and optional details
type ToolError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ToolError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}


// NewInvalidInputErrorWithDetails creates an error for invalid input with additional details
func NewInvalidInputErrorWithDetails(msg, details string) *ToolError {
	return &ToolError{Code: ErrInvalidInput, Message: msg, Details: details}
}

// NewDatabaseErrorWithContext creates a database error with additional context
func NewDatabaseErrorWithContext(operation string, err error) *ToolError {
	return &ToolError{
		Code:    ErrDatabaseError,
		Message: fmt.Sprintf("Database %s failed", operation),
		Details: err.Error(),
	}
}

// NewInternalErrorWithCause creates an internal error wrapping another error
func NewInternalErrorWithCause(msg string, err error) *ToolError {
	return &ToolError{
		Code:    ErrInternalError,
		Message: msg,
		Details: err.Error(),
	}
}

// fromCore maps validation errors from the stats package onto INVALID_INPUT
func fromCore(err error) error {
	var goalErr *stats.InvalidGoalError
	if errors.As(err, &goalErr) {
		return NewInvalidInputErrorWithDetails(
			fmt.Sprintf("Goal %s must be a positive number", goalErr.Field),
			fmt.Sprintf("got %v", goalErr.Value))
	}
	var recErr *stats.InvalidRecordError
	if errors.As(err, &recErr) {
		return NewInvalidInputErrorWithDetails(
			fmt.Sprintf("Invalid activity %s", recErr.Field),
			recErr.Reason)
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return NewInternalErrorWithCause("unexpected failure", err)
}
