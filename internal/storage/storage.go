package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/service"
)

// DefaultPath is the SQLite database used when no URL is configured.
const DefaultPath = "$HOME/.local/share/tbexport/tbexport.db"

// Config selects a storage backend. A postgres URL wins over Path.
type Config struct {
	URL  string
	Path string
}

// DefaultConfig returns a Config using the local SQLite database.
func DefaultConfig() Config {
	return Config{Path: DefaultPath}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.URL != "" && !IsPostgresURL(c.URL) {
		return fmt.Errorf("%w: database url must start with postgres:// or postgresql://", common.ErrInvalidConfig)
	}
	if c.URL == "" && strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("%w: database path or url is required", common.ErrMissingConfig)
	}
	return nil
}

// Backend names the store Open would use.
func (c *Config) Backend() string {
	if c.URL != "" {
		return "postgres"
	}
	return "sqlite"
}

// IsPostgresURL reports whether url is a Postgres connection string.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// Open connects to the configured backend without migrating it.
func Open(ctx context.Context, cfg Config) (service.Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.URL != "" {
		return NewPostgresStorage(ctx, cfg.URL)
	}
	return NewSQLiteStorage(cfg.Path)
}
