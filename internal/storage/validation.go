// Package storage persists regional connections and export history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/trial-balance-export/internal/model"
)

// DefaultListLimit bounds list queries when the caller passes no limit.
const DefaultListLimit = 50

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrInvalidRun        = errors.New("invalid export run")
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

func validateConnection(conn *model.Connection) error {
	if conn == nil {
		return fmt.Errorf("%w: connection", ErrNilParameter)
	}
	if err := conn.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConnection, err)
	}
	return nil
}

func validateRun(run *model.ExportRun) error {
	if run == nil {
		return fmt.Errorf("%w: export run", ErrNilParameter)
	}
	if _, err := model.ParseRegion(string(run.Region)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRun, err)
	}
	if strings.TrimSpace(run.OrgID) == "" {
		return fmt.Errorf("%w: missing organization id", ErrInvalidRun)
	}
	if run.From == "" || run.To == "" {
		return fmt.Errorf("%w: missing period", ErrInvalidRun)
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
