package config

import (
	"fmt"

	"github.com/Veraticus/trial-balance-export/internal/archive"
	"github.com/spf13/viper"
)

// LoadDriveConfig loads the Google Drive archive configuration.
func LoadDriveConfig() (*archive.DriveConfig, error) {
	cfg := archive.DefaultDriveConfig()

	cfg.ParentID = firstString("drive.parent_id", "GOOGLE_DRIVE_PARENT_ID")
	cfg.ServiceAccountPath = ExpandPath(firstString("drive.service_account_path", "GOOGLE_SERVICE_ACCOUNT_PATH"))
	cfg.ServiceAccountJSON = firstString("drive.service_account_json", "GOOGLE_SERVICE_ACCOUNT_JSON")
	cfg.ClientID = firstString("drive.client_id", "GOOGLE_DRIVE_CLIENT_ID")
	cfg.ClientSecret = firstString("drive.client_secret", "GOOGLE_DRIVE_CLIENT_SECRET")
	cfg.RefreshToken = firstString("drive.refresh_token", "GOOGLE_DRIVE_REFRESH_TOKEN")

	if n := viper.GetInt("drive.retry.max_attempts"); n > 0 {
		cfg.Retry.MaxAttempts = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid drive config: %w", err)
	}
	return &cfg, nil
}
