// Package util provides logging, common error sentinels, and small helpers
// shared across weft packages.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors raised by the domain packages unwrap to one
// of these so callers can branch with errors.Is without importing every
// package's concrete error type.
var (
	ErrDuplicateName    = errors.New("name already in use")
	ErrInvalidSpec      = errors.New("invalid specification")
	ErrInvalidTopology  = errors.New("invalid topology")
	ErrInvalidState     = errors.New("operation not valid in current state")
	ErrUnsupportedModel = errors.New("unsupported component model")
	ErrNotFound         = errors.New("resource not found")
	ErrNodeNotReady     = errors.New("node not ready")
	ErrTransport        = errors.New("transport failure")
	ErrRejected         = errors.New("request rejected by orchestrator")
	ErrConnect          = errors.New("connection failed")
	ErrPollingFailed    = errors.New("polling failed")
)

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSpec
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddError adds an error message unconditionally
func (v *ValidationBuilder) AddError(message string) *ValidationBuilder {
	v.errors = append(v.errors, message)
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// NotFoundError identifies a missing entity by kind and name.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}
