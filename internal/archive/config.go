// Package archive stores exported files: in a Google Drive folder, or in a
// local directory for dry runs.
package archive

import (
	"fmt"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/service"
)

// DriveConfig holds the configuration for the Drive uploader.
type DriveConfig struct {
	ParentID           string
	ServiceAccountPath string
	ServiceAccountJSON string
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	Retry              service.RetryOptions
}

// DefaultDriveConfig returns a DriveConfig with sensible defaults.
func DefaultDriveConfig() DriveConfig {
	return DriveConfig{
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *DriveConfig) Validate() error {
	if c.ParentID == "" {
		return fmt.Errorf("%w: drive parent folder id is required", common.ErrMissingConfig)
	}

	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != "" || c.ServiceAccountJSON != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("%w: no drive authentication method configured", common.ErrMissingConfig)
	}
	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("%w: multiple drive authentication methods configured; use either OAuth2 or service account", common.ErrInvalidConfig)
	}
	if c.ServiceAccountPath != "" && c.ServiceAccountJSON != "" {
		return fmt.Errorf("%w: set either a service account path or inline json, not both", common.ErrInvalidConfig)
	}
	return nil
}
