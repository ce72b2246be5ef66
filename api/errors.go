package api

import (
	"errors"
	"fmt"
)

// ValidationError is raised before any request when required input is missing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// NetworkError covers both transport failures and non-success responses.
// Message holds the server-provided error text when there was one.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerMessage returns the server's error text, or fallback when it sent none.
func (e *NetworkError) ServerMessage(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// AuthRequiredError means the action needs a session and there is none.
type AuthRequiredError struct {
	Action string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("%s requires a signed-in user", e.Action)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNetwork(err error) bool {
	var n *NetworkError
	return errors.As(err, &n)
}

func IsAuthRequired(err error) bool {
	var a *AuthRequiredError
	return errors.As(err, &a)
}

// Message extracts the text a renderer should show inline next to the control,
// falling back when err carries nothing useful.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var n *NetworkError
	if errors.As(err, &n) {
		return n.ServerMessage(fallback)
	}
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
