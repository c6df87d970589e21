package config

import (
	"fmt"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/seal"
	"github.com/Veraticus/trial-balance-export/internal/storage"
)

// LoadStorageConfig picks the database. A Postgres URL wins over the SQLite path.
func LoadStorageConfig() (*storage.Config, error) {
	cfg := storage.DefaultConfig()

	cfg.URL = firstString("database.url", "DATABASE_URL")
	if v := firstString("database.path", "TBEXPORT_DB_PATH"); v != "" {
		cfg.Path = v
	}
	cfg.Path = ExpandPath(cfg.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	return &cfg, nil
}

// LoadSealer builds the refresh-token sealer from the configured secret.
func LoadSealer() (*seal.Sealer, error) {
	key := firstString("security.encryption_key", "ENCRYPTION_KEY")
	if key == "" {
		return nil, fmt.Errorf("%w: security.encryption_key (or ENCRYPTION_KEY) is required", common.ErrMissingConfig)
	}
	return seal.New(key)
}
