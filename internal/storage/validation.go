// Package storage loads labeled disaster response messages from SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Loader errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrTableNotFound    = errors.New("table not found")
	ErrMissingColumn    = errors.New("missing column")
	ErrTooFewColumns    = errors.New("too few columns")
	ErrInvalidLabel     = errors.New("invalid label value")
	ErrInvalidMessage   = errors.New("invalid message")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// coerceMessage turns a message cell into text. NULL and blank messages
// are rejected.
func coerceMessage(cell any) (string, error) {
	if b, ok := cell.([]byte); ok {
		cell = string(b)
	}
	if cell == nil {
		return "", fmt.Errorf("%w: NULL", ErrInvalidMessage)
	}
	msg, err := cast.ToStringE(cell)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if strings.TrimSpace(msg) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMessage)
	}
	return msg, nil
}

// coerceLabel turns a label cell into a non-negative integer. Labels may
// be stored as integers, floats or numeric text.
func coerceLabel(cell any) (int64, error) {
	switch v := cell.(type) {
	case nil:
		return 0, fmt.Errorf("%w: NULL", ErrInvalidLabel)
	case []byte:
		cell = strings.TrimSpace(string(v))
	case string:
		cell = strings.TrimSpace(v)
	}
	f, err := cast.ToFloat64E(cell)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLabel, cell)
	}
	if f < 0 || f != float64(int64(f)) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLabel, cell)
	}
	return int64(f), nil
}
