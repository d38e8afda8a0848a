// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Data errors.
	ErrNotFound     = errors.New("not found")
	ErrEmptyDataset = errors.New("dataset is empty")

	// Training errors.
	ErrNotFitted  = errors.New("model is not fitted")
	ErrMisaligned = errors.New("label columns do not match category names")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// AlignmentError reports a width mismatch between a label matrix and the
// category names it is reported against.
type AlignmentError struct {
	Stage      string
	Columns    int
	Categories int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%s: %d label columns for %d categories", e.Stage, e.Columns, e.Categories)
}

func (e *AlignmentError) Unwrap() error {
	return ErrMisaligned
}

// CheckAlignment returns an *AlignmentError when columns != categories.
func CheckAlignment(stage string, columns, categories int) error {
	if columns != categories {
		return &AlignmentError{Stage: stage, Columns: columns, Categories: categories}
	}
	return nil
}
