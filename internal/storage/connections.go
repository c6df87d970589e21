package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/common"
	"github.com/Veraticus/trial-balance-export/internal/model"
)

// SaveConnection inserts a connection or replaces the stored token and
// hosts for an existing (user, region) pair.
func (s *SQLiteStorage) SaveConnection(ctx context.Context, conn *model.Connection) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zoho_connections
			(user_email, region_key, zoho_dc, accounts_host, api_host, refresh_token_enc, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_email, region_key) DO UPDATE SET
			zoho_dc = excluded.zoho_dc,
			accounts_host = excluded.accounts_host,
			api_host = excluded.api_host,
			refresh_token_enc = excluded.refresh_token_enc,
			updated_at = excluded.updated_at
	`, conn.UserEmail, string(conn.Region), conn.DataCenter, conn.AccountsHost, conn.APIHost,
		conn.RefreshTokenSealed, conn.CreatedAt.UTC(), conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// GetConnection returns the connection for a user and region.
func (s *SQLiteStorage) GetConnection(ctx context.Context, userEmail string, region model.Region) (*model.Connection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userEmail, "userEmail"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT user_email, region_key, zoho_dc, accounts_host, api_host, refresh_token_enc, created_at, updated_at
		FROM zoho_connections
		WHERE user_email = ? AND region_key = ?
	`, userEmail, string(region))

	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection %s/%s: %w", userEmail, region, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ListConnections returns stored connections ordered by user and region.
func (s *SQLiteStorage) ListConnections(ctx context.Context, limit int) ([]model.Connection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_email, region_key, zoho_dc, accounts_host, api_host, refresh_token_enc, created_at, updated_at
		FROM zoho_connections
		ORDER BY user_email, region_key
		LIMIT ?
	`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []model.Connection
	for rows.Next() {
		conn, scanErr := scanConnection(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", scanErr)
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}

// DeleteConnection removes the connection for a user and region.
func (s *SQLiteStorage) DeleteConnection(ctx context.Context, userEmail string, region model.Region) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM zoho_connections WHERE user_email = ? AND region_key = ?`,
		userEmail, string(region))
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("connection %s/%s: %w", userEmail, region, common.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*model.Connection, error) {
	var (
		conn   model.Connection
		region string
	)
	err := row.Scan(
		&conn.UserEmail,
		&region,
		&conn.DataCenter,
		&conn.AccountsHost,
		&conn.APIHost,
		&conn.RefreshTokenSealed,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conn.Region = model.Region(region)
	return &conn, nil
}
