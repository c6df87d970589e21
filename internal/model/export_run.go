package model

import "time"

// ExportRun records one region's export attempt.
type ExportRun struct {
	CreatedAt  time.Time
	ID         string
	Region     Region
	OrgID      string
	From       string
	To         string
	Mode       string
	SourceType string
	Outcome    string
	Variant    string
	RawFileID  string
	XLSXFileID string
	XLSXLink   string
	Error      string
	Rows       int
}

// Failed reports whether the run ended before producing a workbook.
func (r ExportRun) Failed() bool { return r.Error != "" }
