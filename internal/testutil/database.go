// Package testutil provides shared fixtures for tests: a migrated in-memory
// database with sealed connections, and representative report payloads.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/seal"
	"github.com/Veraticus/trial-balance-export/internal/service"
	"github.com/Veraticus/trial-balance-export/internal/storage"
	"github.com/Veraticus/trial-balance-export/internal/zoho"
)

// TestSecret is the encryption secret used by TestDB.Sealer.
const TestSecret = "testutil-secret"

// TestDB is a migrated database plus the sealer its tokens were sealed with.
type TestDB struct {
	Storage service.Storage
	Sealer  *seal.Sealer
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. It automatically
// handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.SeedConnection("ops@example.com", model.RegionIN, "1000.refresh")
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return setup(t, store)
}

// SetupTestDBAt creates a migrated SQLite database at path, for tests that
// reopen it through configuration.
func SetupTestDBAt(t *testing.T, path string) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return setup(t, store)
}

func setup(t *testing.T, store service.Storage) *TestDB {
	t.Helper()

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	sealer, err := seal.New(TestSecret)
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}
	return &TestDB{Storage: store, Sealer: sealer, t: t}
}

// SeedConnection stores a connection for region whose sealed token unseals
// to refreshToken, using the region's public hosts.
func (db *TestDB) SeedConnection(userEmail string, region model.Region, refreshToken string) model.Connection {
	db.t.Helper()

	sealed, err := db.Sealer.Seal(refreshToken)
	if err != nil {
		db.t.Fatalf("failed to seal token: %v", err)
	}
	hosts, err := zoho.DefaultHosts(region)
	if err != nil {
		db.t.Fatalf("failed to resolve hosts: %v", err)
	}

	conn := hosts.NewConnection(userEmail, region, sealed, time.Now().UTC())
	if err := db.Storage.SaveConnection(context.Background(), &conn); err != nil {
		db.t.Fatalf("failed to seed connection: %v", err)
	}
	return conn
}
