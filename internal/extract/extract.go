// Package extract locates and ranks the record arrays inside a report document.
package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/trial-balance-export/internal/document"
	"github.com/Veraticus/trial-balance-export/internal/flatten"
)

// RootPath is the path of the top-level document value.
const RootPath = "root"

// Sheet name limits.
const (
	MaxSheetNameLen = 31
	DefaultKeyChars = 64
)

var (
	indexRe      = regexp.MustCompile(`\[[^\]]*\]`)
	illegalRe    = regexp.MustCompile(`[:\\/?*\[\]]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Table is a candidate row set found in a document.
type Table struct {
	// Name is the sanitized sheet name derived from Key. It is not unique.
	Name string
	// Path is the full traversal path, e.g. root.trialbalance[0].rows.
	Path string
	// Key is Path trimmed to its trailing characters.
	Key     string
	Rows    []*document.Record
	Sources []document.Value
	Score   int
}

// Size returns the number of rows in the table.
func (t Table) Size() int { return len(t.Rows) }

// Options tunes table scoring.
type Options struct {
	TrialTokens []string
	RowTokens   []string
	TrialBonus  int
	ValuesBonus int
	RowsBonus   int
	KeyChars    int
}

// DefaultOptions returns the stock scoring weights.
func DefaultOptions() Options {
	return Options{
		TrialTokens: []string{"trial", "tb"},
		RowTokens:   []string{"rows", "records", "items"},
		TrialBonus:  10000,
		ValuesBonus: 5000,
		RowsBonus:   2000,
		KeyChars:    DefaultKeyChars,
	}
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	if o.KeyChars <= 0 {
		return fmt.Errorf("key chars must be positive: %d", o.KeyChars)
	}
	if o.TrialBonus < 0 || o.ValuesBonus < 0 || o.RowsBonus < 0 {
		return fmt.Errorf("score bonuses must not be negative")
	}
	return nil
}

// Extractor walks documents for candidate tables.
type Extractor struct {
	flattener *flatten.Flattener
	opts      Options
}

// New returns an Extractor that flattens rows with f.
func New(opts Options, f *flatten.Flattener) (*Extractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if f == nil {
		f = flatten.Default()
	}
	return &Extractor{opts: opts, flattener: f}, nil
}

// Extract returns every array of objects in doc, best-ranked first. Ties keep
// pre-order traversal order. A document without such arrays yields nil.
func (e *Extractor) Extract(doc document.Value) []Table {
	var tables []Table
	e.walk(doc, RootPath, &tables)

	for i := range tables {
		tables[i].Score = e.Score(tables[i])
	}
	sort.SliceStable(tables, func(i, j int) bool {
		return tables[i].Score > tables[j].Score
	})
	for i := range tables {
		tables[i].Name = SheetName(tables[i].Key, i)
	}
	return tables
}

func (e *Extractor) walk(v document.Value, path string, tables *[]Table) {
	switch v.Kind() {
	case document.KindArray:
		items := v.Items()
		if len(items) > 0 && items[0].Kind() == document.KindObject {
			t := Table{
				Path:    path,
				Key:     trimLeft(path, e.opts.KeyChars),
				Rows:    make([]*document.Record, 0, len(items)),
				Sources: items,
			}
			for _, item := range items {
				t.Rows = append(t.Rows, e.flattener.Flatten(item))
			}
			*tables = append(*tables, t)
		}
		for i, item := range items {
			e.walk(item, path+"["+strconv.Itoa(i)+"]", tables)
		}
	case document.KindObject:
		for _, m := range v.Members() {
			e.walk(m.Value, path+"."+m.Key, tables)
		}
	}
}

// Score ranks t: its size plus bonuses for report-like keys.
func (e *Extractor) Score(t Table) int {
	key := strings.ToLower(t.Key)
	score := t.Size()

	if containsAny(key, e.opts.TrialTokens) {
		score += e.opts.TrialBonus
	}
	if lastSegment(key) == "values" {
		score += e.opts.ValuesBonus
	}
	if containsAny(key, e.opts.RowTokens) {
		score += e.opts.RowsBonus
	}
	return score
}

// SheetName derives a spreadsheet-safe name from a table key. rank is the
// zero-based position used for the Sheet{n} fallback.
func SheetName(key string, rank int) string {
	return Sanitize(lastSegment(key), rank)
}

// Sanitize strips characters spreadsheets reject in sheet names, collapses
// whitespace and truncates to MaxSheetNameLen. An empty result becomes
// Sheet{rank+1}.
func Sanitize(name string, rank int) string {
	name = illegalRe.ReplaceAllString(name, " ")
	name = whitespaceRe.ReplaceAllString(name, " ")
	name = strings.Trim(strings.TrimSpace(name), "'")
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Sheet" + strconv.Itoa(rank+1)
	}
	return TruncateName(name, MaxSheetNameLen)
}

// TruncateName cuts name to at most n runes.
func TruncateName(name string, n int) string {
	if utf8.RuneCountInString(name) <= n {
		return name
	}
	runes := []rune(name)
	return strings.TrimRight(string(runes[:n]), " ")
}

func lastSegment(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 {
		key = key[i+1:]
	}
	return indexRe.ReplaceAllString(key, "")
}

func trimLeft(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	return s
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(s, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

// TopLevelKeys lists the member keys of an object document, for diagnostics.
func TopLevelKeys(doc document.Value) []string {
	if doc.Kind() != document.KindObject {
		return nil
	}
	return doc.Keys()
}
