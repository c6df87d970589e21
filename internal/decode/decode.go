// Package decode turns spreadsheet payloads into the same document shape a
// JSON report has: an object of sheet name to an array of row objects.
package decode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/trial-balance-export/internal/document"
	"github.com/Veraticus/trial-balance-export/internal/sniff"
)

// Decode errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	ErrEmptyWorkbook     = errors.New("workbook has no sheets")
)

// Sheet is the raw cell text of one worksheet.
type Sheet struct {
	Name string
	Rows [][]string
}

// Options tunes header detection.
type Options struct {
	HeaderKeywords []string
	HeaderScanRows int
}

// DefaultOptions returns the stock header detection settings.
func DefaultOptions() Options {
	return Options{
		HeaderKeywords: []string{"account", "name", "code", "debit", "credit", "balance"},
		HeaderScanRows: 15,
	}
}

// Decode reads data as format and projects every sheet onto row objects.
// Decoder panics on malformed input are returned as errors.
func Decode(format sniff.Format, data []byte, opts Options) (doc document.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = document.Value{}
			err = fmt.Errorf("failed to decode %s: %v", format, r)
		}
	}()

	var sheets []Sheet
	switch format {
	case sniff.FormatXLSX:
		sheets, err = XLSX(data)
	case sniff.FormatXLS:
		sheets, err = XLS(data)
	case sniff.FormatCSV:
		sheets, err = CSV(data)
	default:
		return document.Value{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return document.Value{}, err
	}
	if len(sheets) == 0 {
		return document.Value{}, ErrEmptyWorkbook
	}

	return ToDocument(sheets, opts), nil
}

// ToDocument projects sheets onto {sheet: [{header: cell}]} using the
// detected header row of each sheet. Sheets without data rows map to an
// empty array.
func ToDocument(sheets []Sheet, opts Options) document.Value {
	members := make([]document.Member, 0, len(sheets))
	for i, s := range sheets {
		name := s.Name
		if name == "" {
			name = "Sheet" + strconv.Itoa(i+1)
		}
		members = append(members, document.Member{Key: name, Value: sheetRows(s.Rows, opts)})
	}
	return document.Object(members...)
}

func sheetRows(rows [][]string, opts Options) document.Value {
	if len(rows) == 0 {
		return document.Array()
	}

	h := DetectHeader(rows, opts)
	header := Headers(rows[h])

	items := []document.Value{}
	for _, row := range rows[h+1:] {
		if blank(row) {
			continue
		}
		for len(header) < len(row) {
			header = append(header, columnName(len(header)))
		}

		members := make([]document.Member, 0, len(header))
		for c, key := range header {
			cell := ""
			if c < len(row) {
				cell = strings.TrimSpace(row[c])
			}
			v := document.Null()
			if cell != "" {
				v = document.String(cell)
			}
			members = append(members, document.Member{Key: key, Value: v})
		}
		items = append(items, document.Object(members...))
	}
	return document.Array(items...)
}

// DetectHeader returns the index of the row most likely to be the column
// header among the first HeaderScanRows rows. Each cell containing a header
// keyword scores ten and each non-empty cell scores one; ties keep the
// earliest row.
func DetectHeader(rows [][]string, opts Options) int {
	limit := opts.HeaderScanRows
	if limit <= 0 || limit > len(rows) {
		limit = len(rows)
	}

	best, bestScore := 0, -1
	for i := 0; i < limit; i++ {
		score := 0
		for _, cell := range rows[i] {
			cell = strings.ToLower(strings.TrimSpace(cell))
			if cell == "" {
				continue
			}
			score++
			for _, kw := range opts.HeaderKeywords {
				if strings.Contains(cell, kw) {
					score += 10
					break
				}
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// Headers cleans a header row: blanks become column_N and repeats get a
// numeric suffix.
func Headers(row []string) []string {
	out := make([]string, len(row))
	seen := map[string]int{}
	for i, cell := range row {
		name := strings.Join(strings.Fields(cell), " ")
		if name == "" {
			name = columnName(i)
		}
		key := strings.ToLower(name)
		seen[key]++
		if n := seen[key]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

func columnName(i int) string {
	return "column_" + strconv.Itoa(i+1)
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
