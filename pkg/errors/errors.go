// Package errors defines the import pipeline's error taxonomy. Categories
// decide retry behaviour: structural and validation errors are terminal,
// transient errors are retried with backoff, commit errors always trigger a
// full transaction rollback.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category classifies a pipeline error.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryTransient  Category = "transient"
	CategoryValidation Category = "validation"
	CategoryCommit     Category = "commit"
	CategoryInternal   Category = "internal"
)

// Context carries machine-readable detail alongside an error.
type Context map[string]any

// ImportError is the base error type for pipeline failures.
type ImportError struct {
	Category Category `json:"category"`
	Stage    string   `json:"stage"`
	Message  string   `json:"message"`
	Context  Context  `json:"context,omitempty"`
	Cause    error    `json:"-"`
}

// Error implements the error interface.
func (e *ImportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *ImportError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether a stage may retry after this error.
func (e *ImportError) Retryable() bool {
	return e.Category == CategoryTransient
}

// WithContext attaches a key-value pair to the error.
func (e *ImportError) WithContext(key string, value any) *ImportError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// New creates an ImportError without a cause.
func New(category Category, stage, message string) *ImportError {
	return &ImportError{Category: category, Stage: stage, Message: message}
}

// Wrap creates an ImportError around a cause, preserving its stack.
func Wrap(err error, category Category, stage, message string) *ImportError {
	if err == nil {
		return nil
	}
	return &ImportError{
		Category: category,
		Stage:    stage,
		Message:  message,
		Cause:    errors.WithStack(err),
	}
}

// Structural flags a bad file: wrong type, empty content, unreadable layout.
func Structural(stage, message string) *ImportError {
	return New(CategoryStructural, stage, message)
}

// Transient flags an I/O failure worth retrying.
func Transient(err error, stage, message string) *ImportError {
	return Wrap(err, CategoryTransient, stage, message)
}

// Commit flags a transaction-scope failure that forces a rollback.
func Commit(err error, message string) *ImportError {
	return Wrap(err, CategoryCommit, "committing", message)
}

// CategoryOf extracts the category from any error chain, defaulting to
// internal for plain errors.
func CategoryOf(err error) Category {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Category
	}
	return CategoryInternal
}

// IsRetryable reports whether any error in the chain is transient.
func IsRetryable(err error) bool {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Retryable()
	}
	return false
}
