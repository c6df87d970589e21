// Package pipeline turns an upstream report payload into a normalized workbook.
package pipeline

import (
	"fmt"

	"github.com/Veraticus/trial-balance-export/internal/decode"
	"github.com/Veraticus/trial-balance-export/internal/extract"
	"github.com/Veraticus/trial-balance-export/internal/flatten"
	"github.com/Veraticus/trial-balance-export/internal/mapping"
	"github.com/Veraticus/trial-balance-export/internal/workbook"
)

// Mode selects the workbook layout.
type Mode string

// Workbook layouts.
const (
	// ModeCanonical emits one four-column trial balance sheet.
	ModeCanonical Mode = "canonical"
	// ModeSheets emits the top ranked tables, one per sheet.
	ModeSheets Mode = "sheets"
)

// ParseMode converts a flag value to a Mode. Empty selects ModeCanonical.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCanonical:
		return ModeCanonical, nil
	case ModeSheets:
		return ModeSheets, nil
	default:
		return "", fmt.Errorf("unknown mode %q: want %s or %s", s, ModeCanonical, ModeSheets)
	}
}

// Config holds the tunables of every pipeline stage.
type Config struct {
	Mapping      mapping.Options
	Extract      extract.Options
	Decode       decode.Options
	Flatten      flatten.Options
	Mode         Mode
	MaxSheets    int
	PreviewBytes int
}

// DefaultConfig returns a Config with the stock limits and weights.
func DefaultConfig() Config {
	return Config{
		Mode:         ModeCanonical,
		MaxSheets:    workbook.DefaultMaxSheets,
		PreviewBytes: 2000,
		Flatten:      flatten.DefaultOptions(),
		Extract:      extract.DefaultOptions(),
		Mapping:      mapping.DefaultOptions(),
		Decode:       decode.DefaultOptions(),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if c.MaxSheets <= 0 {
		return fmt.Errorf("max sheets must be positive")
	}
	if c.PreviewBytes < 0 {
		return fmt.Errorf("preview bytes cannot be negative")
	}
	if err := c.Flatten.Validate(); err != nil {
		return fmt.Errorf("invalid flatten options: %w", err)
	}
	if err := c.Extract.Validate(); err != nil {
		return fmt.Errorf("invalid extract options: %w", err)
	}
	return nil
}
