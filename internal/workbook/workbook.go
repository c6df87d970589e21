// Package workbook renders extracted tables into an XLSX file.
package workbook

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/trial-balance-export/internal/document"
	"github.com/Veraticus/trial-balance-export/internal/extract"
	"github.com/Veraticus/trial-balance-export/internal/flatten"
	"github.com/Veraticus/trial-balance-export/internal/mapping"
)

// Fixed sheet names.
const (
	InfoSheet      = "Info"
	ErrorSheet     = "Zoho Error"
	CanonicalSheet = "Trial Balance"
)

// DefaultMaxSheets is the number of ranked tables rendered in multi-sheet mode.
const DefaultMaxSheets = 8

const defaultSheet = "Sheet1"

// Line is one key/value row of an info sheet.
type Line struct {
	Key   string
	Value string
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the clock used for last-resort sheet name suffixes.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.namer = NewNamer(now) }
}

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// Builder assembles one workbook. Sheet name uniqueness is tracked per
// Builder, so separate builders never interfere. A Builder is not safe for
// concurrent use.
type Builder struct {
	file        *excelize.File
	namer       *Namer
	logger      *slog.Logger
	sheets      []string
	headerStyle int
}

// New returns an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		file:   excelize.NewFile(),
		namer:  NewNamer(nil),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if style, err := b.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	}); err == nil {
		b.headerStyle = style
	}
	return b
}

// Sheets returns the sheet names added so far, in order.
func (b *Builder) Sheets() []string {
	return append([]string(nil), b.sheets...)
}

// AddTable renders rows as a sheet. Columns are the union of row keys in
// first-seen order. It returns the unique name the sheet was given.
func (b *Builder) AddTable(name string, rows []*document.Record) (string, error) {
	sheet, err := b.addSheet(name)
	if err != nil {
		return "", err
	}

	if err := b.writeRows(sheet, prepareTableData(rows)); err != nil {
		return "", err
	}

	b.logger.Debug("added table sheet", "sheet", sheet, "rows", len(rows))
	return sheet, nil
}

// AddTables renders up to limit tables, best-ranked first.
func (b *Builder) AddTables(tables []extract.Table, limit int) ([]string, error) {
	if limit <= 0 || limit > len(tables) {
		limit = len(tables)
	}

	names := make([]string, 0, limit)
	for _, t := range tables[:limit] {
		name, err := b.AddTable(t.Name, t.Rows)
		if err != nil {
			return names, fmt.Errorf("failed to add table %s: %w", t.Path, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// AddCanonical renders rows under the fixed four-column header. Missing
// values become empty cells.
func (b *Builder) AddCanonical(name string, rows []mapping.Row) (string, error) {
	sheet, err := b.addSheet(name)
	if err != nil {
		return "", err
	}

	if err := b.writeRows(sheet, prepareCanonicalData(rows)); err != nil {
		return "", err
	}

	if err := b.file.SetColWidth(sheet, "A", "A", 40); err != nil {
		return "", fmt.Errorf("failed to set column width: %w", err)
	}
	if err := b.file.SetColWidth(sheet, "B", "D", 18); err != nil {
		return "", fmt.Errorf("failed to set column width: %w", err)
	}

	b.logger.Debug("added canonical sheet", "sheet", sheet, "rows", len(rows))
	return sheet, nil
}

// AddInfo renders a two-column key/value sheet.
func (b *Builder) AddInfo(name string, lines []Line) (string, error) {
	sheet, err := b.addSheet(name)
	if err != nil {
		return "", err
	}

	values := make([][]any, 0, len(lines)+1)
	values = append(values, []any{"field", "value"})
	for _, l := range lines {
		values = append(values, []any{l.Key, flatten.Truncate(l.Value, flatten.DefaultMaxCellChars)})
	}

	if err := b.writeRows(sheet, values); err != nil {
		return "", err
	}
	if err := b.file.SetColWidth(sheet, "A", "A", 24); err != nil {
		return "", fmt.Errorf("failed to set column width: %w", err)
	}
	if err := b.file.SetColWidth(sheet, "B", "B", 100); err != nil {
		return "", fmt.Errorf("failed to set column width: %w", err)
	}
	return sheet, nil
}

// Bytes serialises the workbook. A builder with no sheets still produces a
// valid workbook holding a single info sheet.
func (b *Builder) Bytes() ([]byte, error) {
	if len(b.sheets) == 0 {
		if _, err := b.AddInfo(InfoSheet, []Line{{Key: "status", Value: "no data"}}); err != nil {
			return nil, err
		}
	}

	b.file.SetActiveSheet(0)
	buf, err := b.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Close releases the underlying file.
func (b *Builder) Close() error {
	return b.file.Close()
}

func (b *Builder) addSheet(name string) (string, error) {
	sheet := b.namer.Unique(name)

	if len(b.sheets) == 0 {
		if err := b.file.SetSheetName(defaultSheet, sheet); err != nil {
			return "", fmt.Errorf("failed to rename sheet %q: %w", sheet, err)
		}
	} else if _, err := b.file.NewSheet(sheet); err != nil {
		return "", fmt.Errorf("failed to create sheet %q: %w", sheet, err)
	}

	b.sheets = append(b.sheets, sheet)
	return sheet, nil
}

func (b *Builder) writeRows(sheet string, values [][]any) error {
	for i, row := range values {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+1, err)
		}
		if err := b.file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", i+1, sheet, err)
		}
	}

	if len(values) > 0 && len(values[0]) > 0 && b.headerStyle != 0 {
		last, err := excelize.CoordinatesToCellName(len(values[0]), 1)
		if err != nil {
			return fmt.Errorf("failed to address header: %w", err)
		}
		if err := b.file.SetCellStyle(sheet, "A1", last, b.headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}
	return nil
}

// prepareTableData lays out rows under a header of every key seen.
func prepareTableData(rows []*document.Record) [][]any {
	var columns []string
	index := map[string]int{}
	for _, rec := range rows {
		for _, key := range rec.Keys() {
			if _, ok := index[key]; !ok {
				index[key] = len(columns)
				columns = append(columns, key)
			}
		}
	}

	values := make([][]any, 0, len(rows)+1)
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	values = append(values, header)

	for _, rec := range rows {
		line := make([]any, len(columns))
		for _, f := range rec.Fields() {
			line[index[f.Key]] = cellValue(f.Value)
		}
		values = append(values, line)
	}
	return values
}

func prepareCanonicalData(rows []mapping.Row) [][]any {
	values := make([][]any, 0, len(rows)+1)
	header := make([]any, len(mapping.Columns))
	for i, c := range mapping.Columns {
		header[i] = c
	}
	values = append(values, header)

	for _, r := range rows {
		line := make([]any, len(mapping.Columns))
		if r.AccountName != nil {
			line[0] = *r.AccountName
		}
		if r.AccountCode != nil {
			line[1] = *r.AccountCode
		}
		if r.NetDebitTotal.Valid {
			line[2] = r.NetDebitTotal.Decimal.InexactFloat64()
		}
		if r.NetCreditTotal.Valid {
			line[3] = r.NetCreditTotal.Decimal.InexactFloat64()
		}
		values = append(values, line)
	}
	return values
}

// cellValue converts a scalar to the value excelize should store. Nulls
// become empty cells.
func cellValue(v document.Value) any {
	switch v.Kind() {
	case document.KindNull:
		return nil
	case document.KindBool:
		return v.Bool()
	case document.KindNumber:
		if f, ok := v.Float64(); ok {
			return f
		}
		return v.Text()
	default:
		return v.Text()
	}
}
