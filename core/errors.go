package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These form the uniform error taxonomy at component boundaries.
var (
	// LLM call errors
	ErrTimeout   = errors.New("operation timeout")
	ErrTransport = errors.New("transport failure")
	ErrRateLimit = errors.New("rate limit exceeded")
	ErrAuth      = errors.New("authentication failed")
	ErrProtocol  = errors.New("malformed provider response")

	// Orchestration and validation errors
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrShutdown          = errors.New("shutting down")
	ErrInsufficientInput = errors.New("insufficient input")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")
)

// FlipError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type FlipError struct {
	Op      string // Operation that failed (e.g., "orchestrator.StartWorkflow")
	Kind    string // Error kind (e.g., "workflow", "llm", "offer")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *FlipError) Error() string {
	detail := e.Message
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if detail == "" {
		detail = fmt.Sprintf("%s error", e.Kind)
	}
	switch {
	case e.Op != "" && e.ID != "":
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, detail)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, detail)
	default:
		return detail
	}
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *FlipError) Unwrap() error {
	return e.Err
}

// NewFlipError wraps a sentinel with operation context. Kind is derived
// from the sentinel's taxonomy name; id and message are optional.
func NewFlipError(op string, err error, id, message string) *FlipError {
	return &FlipError{
		Op:      op,
		Kind:    ErrorKind(err),
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// IsRetryable checks if an error is retryable.
// Retryable errors are typically transient network or availability issues.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrRateLimit)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration) ||
		errors.Is(err, ErrAuth)
}

// ErrorKind maps an error to its taxonomy name for logging and metrics
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrTransport):
		return "TRANSPORT"
	case errors.Is(err, ErrRateLimit):
		return "RATE_LIMIT"
	case errors.Is(err, ErrAuth):
		return "AUTH"
	case errors.Is(err, ErrProtocol):
		return "PROTOCOL"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrDuplicate):
		return "DUPLICATE"
	case errors.Is(err, ErrShutdown):
		return "SHUTDOWN"
	case errors.Is(err, ErrInsufficientInput):
		return "INSUFFICIENT_INPUT"
	default:
		return "INTERNAL"
	}
}
