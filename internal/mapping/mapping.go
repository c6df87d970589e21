// Package mapping projects flattened rows onto the canonical trial balance columns.
package mapping

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/Veraticus/trial-balance-export/internal/document"
	"github.com/Veraticus/trial-balance-export/internal/flatten"
)

// Canonical column headers, in output order.
const (
	ColumnAccountName    = "account_name"
	ColumnAccountCode    = "account_code"
	ColumnNetDebitTotal  = "net_debit_total"
	ColumnNetCreditTotal = "net_credit_total"
)

// Columns is the canonical header row.
var Columns = []string{ColumnAccountName, ColumnAccountCode, ColumnNetDebitTotal, ColumnNetCreditTotal}

// Field identifies a canonical column.
type Field int

// Fields in resolution order. Codes resolve before names.
const (
	FieldCode Field = iota
	FieldName
	FieldDebit
	FieldCredit
)

var fields = []Field{FieldCode, FieldName, FieldDebit, FieldCredit}

// String returns the canonical column for f.
func (f Field) String() string {
	switch f {
	case FieldCode:
		return ColumnAccountCode
	case FieldName:
		return ColumnAccountName
	case FieldDebit:
		return ColumnNetDebitTotal
	case FieldCredit:
		return ColumnNetCreditTotal
	default:
		return "unknown"
	}
}

// Tier is the strength of a key match.
type Tier int

// Match tiers, strongest first.
const (
	TierNone Tier = iota
	TierExact
	TierSuffix
	TierSubstring
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSuffix:
		return "suffix"
	case TierSubstring:
		return "substring"
	default:
		return "none"
	}
}

// Aliases lists the accepted source keys for each canonical column, most
// preferred first. Aliases are compared case-insensitively, with spaces and
// hyphens treated as underscores.
type Aliases struct {
	Name   []string `mapstructure:"name"`
	Code   []string `mapstructure:"code"`
	Debit  []string `mapstructure:"debit"`
	Credit []string `mapstructure:"credit"`
}

// DefaultAliases returns the stock alias lists.
func DefaultAliases() Aliases {
	return Aliases{
		Name:   []string{"name", "account_name", "account", "accountname", "account_name_formatted", "ledger_name"},
		Code:   []string{"account_code", "code", "accountnumber", "account_number", "account_id", "accountcode", "ledger_code"},
		Debit:  []string{"net_debit_total", "net_debit", "debit_total", "debit", "netdebit"},
		Credit: []string{"net_credit_total", "net_credit", "credit_total", "credit", "netcredit"},
	}
}

// For returns the alias list of f.
func (a Aliases) For(f Field) []string {
	switch f {
	case FieldCode:
		return a.Code
	case FieldName:
		return a.Name
	case FieldDebit:
		return a.Debit
	case FieldCredit:
		return a.Credit
	default:
		return nil
	}
}

// Options tunes a Mapper.
type Options struct {
	Aliases Aliases
	// AllowSubstring enables the broad substring tier.
	AllowSubstring bool
}

// DefaultOptions returns the stock mapping policy with all three tiers enabled.
func DefaultOptions() Options {
	return Options{Aliases: DefaultAliases(), AllowSubstring: true}
}

// Match is a resolved source key for one canonical column.
type Match struct {
	Key   string
	Value document.Value
	Tier  Tier
}

// Row is one canonical trial balance line. Nil and invalid values mean the
// source had no usable value, which is distinct from zero.
type Row struct {
	AccountName    *string
	AccountCode    *string
	NetDebitTotal  decimal.NullDecimal
	NetCreditTotal decimal.NullDecimal
}

// Retained reports whether the row names an account at all.
func (r Row) Retained() bool {
	return r.AccountName != nil || r.AccountCode != nil
}

// Trace records which keys fed a Row.
type Trace map[Field]Match

// Substring reports whether any field resolved through the substring tier.
func (t Trace) Substring() bool {
	for _, m := range t {
		if m.Tier == TierSubstring {
			return true
		}
	}
	return false
}

// Stats summarises a MapRows call.
type Stats struct {
	Input         int
	Retained      int
	Dropped       int
	WithCode      int
	WithoutCode   int
	SubstringHits int
}

// Mapper maps flat records onto Rows. It is safe for concurrent use.
type Mapper struct {
	aliases [4][]string
	opts    Options
}

// New returns a Mapper for opts.
func New(opts Options) *Mapper {
	m := &Mapper{opts: opts}
	for _, f := range fields {
		list := opts.Aliases.For(f)
		lowered := make([]string, 0, len(list))
		for _, a := range list {
			if a = normalizeKey(a); a != "" {
				lowered = append(lowered, a)
			}
		}
		m.aliases[f] = lowered
	}
	return m
}

// Default returns a Mapper using DefaultOptions.
func Default() *Mapper { return New(DefaultOptions()) }

// MapRow resolves every canonical column of rec. Fields are resolved tier by
// tier, so an exact match for any column wins over a suffix match for
// another, and each source key feeds at most one column.
func (m *Mapper) MapRow(rec *document.Record) (Row, Trace) {
	trace := Trace{}
	claimed := map[string]bool{}

	tiers := []Tier{TierExact, TierSuffix}
	if m.opts.AllowSubstring {
		tiers = append(tiers, TierSubstring)
	}

	for _, tier := range tiers {
		for _, f := range fields {
			if _, done := trace[f]; done {
				continue
			}
			if match, ok := m.find(rec, m.aliases[f], tier, claimed); ok {
				trace[f] = match
				claimed[match.Key] = true
			}
		}
	}

	var row Row
	if match, ok := trace[FieldName]; ok {
		row.AccountName = ParseText(match.Value)
	}
	if match, ok := trace[FieldCode]; ok {
		row.AccountCode = ParseText(match.Value)
	}
	if match, ok := trace[FieldDebit]; ok {
		row.NetDebitTotal = ParseAmount(match.Value)
	}
	if match, ok := trace[FieldCredit]; ok {
		row.NetCreditTotal = ParseAmount(match.Value)
	}
	return row, trace
}

// Find returns the best match for aliases in rec across the enabled tiers.
func (m *Mapper) Find(rec *document.Record, aliases []string) (Match, bool) {
	lowered := make([]string, len(aliases))
	for i, a := range aliases {
		lowered[i] = normalizeKey(a)
	}

	tiers := []Tier{TierExact, TierSuffix}
	if m.opts.AllowSubstring {
		tiers = append(tiers, TierSubstring)
	}
	for _, tier := range tiers {
		if match, ok := m.find(rec, lowered, tier, nil); ok {
			return match, true
		}
	}
	return Match{}, false
}

// MapRows maps recs and drops rows with neither an account name nor a code.
func (m *Mapper) MapRows(recs []*document.Record) ([]Row, Stats) {
	stats := Stats{Input: len(recs)}
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		row, trace := m.MapRow(rec)
		if !row.Retained() {
			stats.Dropped++
			continue
		}
		if trace.Substring() {
			stats.SubstringHits++
		}
		if row.AccountCode != nil {
			stats.WithCode++
		} else {
			stats.WithoutCode++
		}
		rows = append(rows, row)
	}
	stats.Retained = len(rows)
	return rows, stats
}

func (m *Mapper) find(rec *document.Record, aliases []string, tier Tier, claimed map[string]bool) (Match, bool) {
	entries := rec.Fields()
	for _, alias := range aliases {
		for _, fld := range entries {
			if claimed[fld.Key] || !usable(fld.Value) {
				continue
			}
			if matches(normalizeKey(fld.Key), alias, tier) {
				return Match{Key: fld.Key, Value: fld.Value, Tier: tier}, true
			}
		}
	}
	return Match{}, false
}

// normalizeKey lower-cases key and joins words with underscores, so a
// spreadsheet header such as "Net Debit" compares equal to net_debit.
func normalizeKey(key string) string {
	words := strings.FieldsFunc(strings.ToLower(norm.NFC.String(key)), func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t' || r == '\u00a0'
	})
	return strings.Join(words, "_")
}

func matches(key, alias string, tier Tier) bool {
	switch tier {
	case TierExact:
		return key == alias
	case TierSuffix:
		return strings.HasSuffix(key, "."+alias)
	case TierSubstring:
		return strings.Contains(key, alias)
	default:
		return false
	}
}

// usable rejects values that cannot carry account data: nulls and the
// summaries left behind by flattening.
func usable(v document.Value) bool {
	return !v.IsNull() && !flatten.IsPlaceholder(v)
}

// ParseText returns the trimmed text of v, or nil when it is empty.
func ParseText(v document.Value) *string {
	if v.IsContainer() || v.IsNull() {
		return nil
	}
	s := strings.TrimSpace(v.Text())
	if s == "" {
		return nil
	}
	return &s
}

// ParseAmount converts v to a decimal. Thousands separators and spaces are
// ignored and a parenthesised amount is negative. Empty or unparseable
// values are invalid, never zero.
func ParseAmount(v document.Value) decimal.NullDecimal {
	switch v.Kind() {
	case document.KindNumber, document.KindString:
	default:
		return decimal.NullDecimal{}
	}

	s := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\n', '\r', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, v.Text())

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && len(s) > 2 {
		negative = true
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if negative {
		d = d.Neg()
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
