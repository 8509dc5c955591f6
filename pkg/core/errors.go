// Package core holds shared error types for the memory-capture pipeline.
package core

import (
	"errors"
	"fmt"
)

// Error represents a pipeline error with a stable type and code.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Code       string    `json:"code,omitempty"`
	Underlying error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors across the capture pipeline.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrPermission covers capture-permission failures (microphone denied).
	// Fatal to session start; never retried.
	ErrPermission ErrorType = "permission_error"
	// ErrSecondaryCapture covers agent-audio leg acquisition failures.
	// Non-fatal: the session continues in microphone-only mode.
	ErrSecondaryCapture ErrorType = "secondary_capture_error"
	// ErrTranscription covers speech-to-text failures. Degrades to a
	// placeholder transcript entry.
	ErrTranscription ErrorType = "transcription_error"
	// ErrSynthesis covers text-to-speech failures. The reply text is still
	// recorded; playback is skipped.
	ErrSynthesis ErrorType = "synthesis_error"
	// ErrCollaborator covers language-model completion failures.
	ErrCollaborator ErrorType = "collaborator_error"
	// ErrPersistence covers durable-storage failures. Finalize is retried
	// once before the session is marked failed.
	ErrPersistence ErrorType = "persistence_error"
	ErrNotFound    ErrorType = "not_found_error"
	ErrAPI         ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewPermissionError creates a capture-permission error.
func NewPermissionError(message string, underlying error) *Error {
	return &Error{Type: ErrPermission, Message: message, Underlying: underlying}
}

// NewSecondaryCaptureError creates a non-fatal secondary-leg error.
func NewSecondaryCaptureError(underlying error) *Error {
	return &Error{
		Type:       ErrSecondaryCapture,
		Message:    fmt.Sprintf("agent audio leg unavailable: %v", underlying),
		Underlying: underlying,
	}
}

// NewTranscriptionError creates a transcription error.
func NewTranscriptionError(underlying error) *Error {
	return &Error{
		Type:       ErrTranscription,
		Message:    fmt.Sprintf("transcription failed: %v", underlying),
		Underlying: underlying,
	}
}

// NewSynthesisError creates a synthesis error.
func NewSynthesisError(underlying error) *Error {
	return &Error{
		Type:       ErrSynthesis,
		Message:    fmt.Sprintf("synthesis failed: %v", underlying),
		Underlying: underlying,
	}
}

// NewCollaboratorError creates a language-model collaborator error.
func NewCollaboratorError(underlying error) *Error {
	return &Error{
		Type:       ErrCollaborator,
		Message:    fmt.Sprintf("completion failed: %v", underlying),
		Underlying: underlying,
	}
}

// NewPersistenceError creates a persistence error.
func NewPersistenceError(underlying error) *Error {
	return &Error{
		Type:       ErrPersistence,
		Message:    fmt.Sprintf("persistence failed: %v", underlying),
		Underlying: underlying,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// IsRetryable returns true if the error class may be retried.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrPersistence, ErrAPI, ErrCollaborator:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// TypeOf returns the ErrorType of err, or "" if err is not a pipeline Error.
func TypeOf(err error) ErrorType {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ""
}
