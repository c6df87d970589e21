package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgMigrations create the same tables as the SQLite schema. The
// connections table may already exist without timestamps, so those are
// added separately.
var pgMigrations = []struct {
	Description string
	Statements  []string
	Version     int
}{
	{
		Version:     1,
		Description: "Zoho connections",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS zoho_connections (
				user_email text NOT NULL,
				region_key text NOT NULL,
				zoho_dc text NOT NULL,
				accounts_host text NOT NULL,
				api_host text NOT NULL,
				refresh_token_enc bytea NOT NULL,
				UNIQUE (user_email, region_key)
			)`,
			`ALTER TABLE zoho_connections ADD COLUMN IF NOT EXISTS created_at timestamptz NOT NULL DEFAULT now()`,
			`ALTER TABLE zoho_connections ADD COLUMN IF NOT EXISTS updated_at timestamptz NOT NULL DEFAULT now()`,
		},
	},
	{
		Version:     2,
		Description: "Export history",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS export_runs (
				id uuid PRIMARY KEY,
				region_key text NOT NULL,
				organization_id text NOT NULL,
				from_date text NOT NULL,
				to_date text NOT NULL,
				mode text NOT NULL DEFAULT '',
				source_type text NOT NULL DEFAULT '',
				outcome text NOT NULL DEFAULT '',
				variant text NOT NULL DEFAULT '',
				raw_file_id text NOT NULL DEFAULT '',
				xlsx_file_id text NOT NULL DEFAULT '',
				xlsx_link text NOT NULL DEFAULT '',
				error text NOT NULL DEFAULT '',
				row_count integer NOT NULL DEFAULT 0,
				created_at timestamptz NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_export_runs_created ON export_runs(created_at)`,
		},
	},
}

// PostgresStorage implements the Storage interface on a pgx pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to the database at url.
func NewPostgresStorage(ctx context.Context, url string) (*PostgresStorage, error) {
	if err := validateString(url, "url"); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

// Close closes the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// SchemaVersion returns the applied schema version, 0 on a fresh database.
func (s *PostgresStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS tbexport_schema (version integer NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema table: %w", err)
	}

	var version int
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM tbexport_schema`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range pgMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.pool.Begin(ctx)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}
		for _, stmt := range migration.Statements {
			if _, execErr := tx.Exec(ctx, stmt); execErr != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("migration %d failed: %w", migration.Version, execErr)
			}
		}
		if _, execErr := tx.Exec(ctx, `INSERT INTO tbexport_schema (version) VALUES ($1)`, migration.Version); execErr != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}

// SaveConnection upserts on (user_email, region_key). The sealed token is
// stored as its UTF-8 bytes.
func (s *PostgresStorage) SaveConnection(ctx context.Context, conn *model.Connection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateConnection(conn); err != nil {
		return err
	}

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO zoho_connections
			(user_email, region_key, zoho_dc, accounts_host, api_host, refresh_token_enc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_email, region_key) DO UPDATE SET
			zoho_dc = excluded.zoho_dc,
			accounts_host = excluded.accounts_host,
			api_host = excluded.api_host,
			refresh_token_enc = excluded.refresh_token_enc,
			updated_at = excluded.updated_at
	`, conn.UserEmail, string(conn.Region), conn.DataCenter, conn.AccountsHost, conn.APIHost,
		[]byte(conn.RefreshTokenSealed), conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// GetConnection returns the connection for a user and region.
func (s *PostgresStorage) GetConnection(ctx context.Context, userEmail string, region model.Region) (*model.Connection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userEmail, "userEmail"); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT user_email, region_key, zoho_dc, accounts_host, api_host, refresh_token_enc, created_at, updated_at
		FROM zoho_connections
		WHERE user_email = $1 AND region_key = $2
		LIMIT 1
	`, userEmail, string(region))

	conn, err := scanPgConnection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("connection %s/%s: %w", userEmail, region, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ListConnections returns stored connections ordered by user and region.
func (s *PostgresStorage) ListConnections(ctx context.Context, limit int) ([]model.Connection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_email, region_key, zoho_dc, accounts_host, api_host, refresh_token_enc, created_at, updated_at
		FROM zoho_connections
		ORDER BY user_email, region_key
		LIMIT $1
	`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []model.Connection
	for rows.Next() {
		conn, scanErr := scanPgConnection(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", scanErr)
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// DeleteConnection removes the connection for a user and region.
func (s *PostgresStorage) DeleteConnection(ctx context.Context, userEmail string, region model.Region) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM zoho_connections WHERE user_email = $1 AND region_key = $2`,
		userEmail, string(region))
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection %s/%s: %w", userEmail, region, common.ErrNotFound)
	}
	return nil
}

// SaveExportRun records one export attempt.
func (s *PostgresStorage) SaveExportRun(ctx context.Context, run *model.ExportRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}
	prepareRun(run)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO export_runs
			(id, region_key, organization_id, from_date, to_date, mode, source_type, outcome, variant,
			 raw_file_id, xlsx_file_id, xlsx_link, error, row_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, run.ID, string(run.Region), run.OrgID, run.From, run.To, run.Mode, run.SourceType, run.Outcome,
		run.Variant, run.RawFileID, run.XLSXFileID, run.XLSXLink, run.Error, run.Rows, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save export run: %w", err)
	}
	return nil
}

// ListExportRuns returns the most recent runs first.
func (s *PostgresStorage) ListExportRuns(ctx context.Context, limit int) ([]model.ExportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, region_key, organization_id, from_date, to_date, mode, source_type, outcome, variant,
		       raw_file_id, xlsx_file_id, xlsx_link, error, row_count, created_at
		FROM export_runs
		ORDER BY created_at DESC, id
		LIMIT $1
	`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list export runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ExportRun
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan export run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanPgConnection(row scanner) (*model.Connection, error) {
	var (
		conn   model.Connection
		region string
		sealed []byte
	)
	err := row.Scan(
		&conn.UserEmail,
		&region,
		&conn.DataCenter,
		&conn.AccountsHost,
		&conn.APIHost,
		&sealed,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conn.Region = model.Region(region)
	conn.RefreshTokenSealed = string(sealed)
	return &conn, nil
}
