// Package util provides logging helpers, common error types and the small
// parsing helpers shared by the SONiC adapter and the scenario runner.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrValidationFailed  = errors.New("validation failed")
	ErrInvariantViolated = errors.New("invariant violated")
	ErrNotConnected      = errors.New("not connected")
)

// NotFoundError names the missing resource and its kind
type NotFoundError struct {
	Kind     string
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(kind, resource string) *NotFoundError {
	return &NotFoundError{Kind: kind, Resource: resource}
}

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
	return ErrValidationFailed
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

// InvariantError reports every broken invariant found by a consistency check.
// Invariant names the check (e.g. "subnet-cache") so callers can group them.
type InvariantError struct {
	Invariant  string
	Violations []string
}

func (e *InvariantError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", e.Invariant, e.Violations[0])
	}
	return fmt.Sprintf("%s: %d violations:\n  - %s", e.Invariant, len(e.Violations), strings.Join(e.Violations, "\n  - "))
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolated
}

// InvariantChecker accumulates violations for one invariant.
type InvariantChecker struct {
	name       string
	violations []string
}

// NewInvariantChecker returns a checker for the named invariant
func NewInvariantChecker(name string) *InvariantChecker {
	return &InvariantChecker{name: name}
}

// Check records a violation if condition is false
func (c *InvariantChecker) Check(condition bool, format string, args ...interface{}) {
	if !condition {
		c.violations = append(c.violations, fmt.Sprintf(format, args...))
	}
}

// Err returns an *InvariantError, or nil if nothing was violated
func (c *InvariantChecker) Err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return &InvariantError{Invariant: c.name, Violations: c.violations}
}
