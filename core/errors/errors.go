// Package errors provides standardized error types and helpers for the epcheck codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrDatasetAccess indicates an upstream dataset I/O or decode failure
	ErrDatasetAccess = errors.New("dataset access failed")
	// ErrInvariant indicates a violated dataset consistency invariant
	ErrInvariant = errors.New("invariant violated")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "report", "episode", "data file")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// AccessError represents a dataset access failure: missing files, truncated
// rows, or decode errors surfaced by a dataset provider. An AccessError
// aborts the remaining check stages for the affected dataset.
type AccessError struct {
	Dataset   string // Which dataset handle failed ("reference", "candidate", or a root path)
	Operation string // Operation being performed (e.g., "frame", "meta", "decode")
	Index     int    // Frame or episode index involved, -1 if not applicable
	Err       error  // Underlying error
}

func (e *AccessError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("dataset %s: %s at index %d: %v", e.Dataset, e.Operation, e.Index, e.Err)
	}
	return fmt.Sprintf("dataset %s: %s: %v", e.Dataset, e.Operation, e.Err)
}

func (e *AccessError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrDatasetAccess
}

// Is reports whether target is ErrDatasetAccess so callers can detect
// access failures without knowing the wrapped cause.
func (e *AccessError) Is(target error) bool {
	return target == ErrDatasetAccess
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "info.json", "episodes.jsonl", "frame row")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewAccess creates an AccessError
func NewAccess(dataset, operation string, index int, err error) *AccessError {
	return &AccessError{
		Dataset:   dataset,
		Operation: operation,
		Index:     index,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
