// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/model"
)

// ConnectionStore persists regional authorizations.
type ConnectionStore interface {
	SaveConnection(ctx context.Context, conn *model.Connection) error
	GetConnection(ctx context.Context, userEmail string, region model.Region) (*model.Connection, error)
	ListConnections(ctx context.Context, limit int) ([]model.Connection, error)
	DeleteConnection(ctx context.Context, userEmail string, region model.Region) error
}

// RunStore persists export history.
type RunStore interface {
	SaveExportRun(ctx context.Context, run *model.ExportRun) error
	ListExportRuns(ctx context.Context, limit int) ([]model.ExportRun, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	ConnectionStore
	RunStore

	// Database management
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// UploadFile is a file handed to an Uploader.
type UploadFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// UploadedFile describes where an Uploader put a file.
type UploadedFile struct {
	ID       string
	Name     string
	MIMEType string
	Link     string
}

// Uploader archives exported files.
type Uploader interface {
	Upload(ctx context.Context, file UploadFile) (*UploadedFile, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions returns the retry policy used for network calls.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}
