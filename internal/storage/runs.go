package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/google/uuid"
)

// prepareRun fills the generated fields of a new run.
func prepareRun(run *model.ExportRun) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}

// SaveExportRun records one export attempt.
func (s *SQLiteStorage) SaveExportRun(ctx context.Context, run *model.ExportRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}
	prepareRun(run)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO export_runs
			(id, region_key, organization_id, from_date, to_date, mode, source_type, outcome, variant,
			 raw_file_id, xlsx_file_id, xlsx_link, error, row_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Region), run.OrgID, run.From, run.To, run.Mode, run.SourceType, run.Outcome,
		run.Variant, run.RawFileID, run.XLSXFileID, run.XLSXLink, run.Error, run.Rows, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save export run: %w", err)
	}
	return nil
}

// ListExportRuns returns the most recent runs first.
func (s *SQLiteStorage) ListExportRuns(ctx context.Context, limit int) ([]model.ExportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, region_key, organization_id, from_date, to_date, mode, source_type, outcome, variant,
		       raw_file_id, xlsx_file_id, xlsx_link, error, row_count, created_at
		FROM export_runs
		ORDER BY created_at DESC, id
		LIMIT ?
	`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list export runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func scanRun(row scanner) (*model.ExportRun, error) {
	var (
		run    model.ExportRun
		region string
	)
	err := row.Scan(
		&run.ID,
		&region,
		&run.OrgID,
		&run.From,
		&run.To,
		&run.Mode,
		&run.SourceType,
		&run.Outcome,
		&run.Variant,
		&run.RawFileID,
		&run.XLSXFileID,
		&run.XLSXLink,
		&run.Error,
		&run.Rows,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Region = model.Region(region)
	return &run, nil
}
