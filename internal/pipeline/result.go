package pipeline

import (
	"github.com/Veraticus/trial-balance-export/internal/mapping"
	"github.com/Veraticus/trial-balance-export/internal/sniff"
)

// Outcome classifies how far a payload got through the pipeline.
type Outcome string

// Outcomes. Every outcome still carries a valid workbook.
const (
	OutcomeOK            Outcome = "ok"
	OutcomeParseFailure  Outcome = "parse_failure"
	OutcomeNoTableFound  Outcome = "no_table_found"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeNoRowsMapped  Outcome = "no_rows_mapped"
	OutcomeUnsupported   Outcome = "unsupported"
	OutcomeBuildFailure  Outcome = "build_failure"
)

// Diagnostic explains a non-OK outcome.
type Diagnostic struct {
	Message      string
	Head         string
	TopLevelKeys []string
	UpstreamCode string
}

// SheetSummary describes one rendered sheet.
type SheetSummary struct {
	Name  string
	Path  string
	Rows  int
	Score int
}

// CanonicalSummary describes the table chosen for canonical mode.
type CanonicalSummary struct {
	Path  string
	Stats mapping.Stats
}

// Result is the outcome of processing one payload. Workbook is always a
// decodable XLSX file.
type Result struct {
	Canonical   *CanonicalSummary
	Diagnostic  *Diagnostic
	Guess       sniff.Guess
	SourceType  sniff.Format
	Outcome     Outcome
	Mode        Mode
	Workbook    []byte
	Sheets      []SheetSummary
	TablesFound int
}

// OK reports whether the payload produced report data.
func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Rows returns the number of data rows written, across all sheets.
func (r Result) Rows() int {
	if r.Canonical != nil {
		return r.Canonical.Stats.Retained
	}
	n := 0
	for _, s := range r.Sheets {
		n += s.Rows
	}
	return n
}
