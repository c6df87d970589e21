package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/trial-balance-export/internal/document"
)

func newExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New(DefaultOptions(), nil)
	require.NoError(t, err)
	return e
}

func parse(t *testing.T, s string) document.Value {
	t.Helper()
	v, err := document.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func objects(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = `{"id":1}`
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestExtract_RowsBeatLargerItems(t *testing.T) {
	doc := parse(t, `{"meta":{"items":`+objects(50)+`},"trialbalance":{"rows":`+objects(3)+`}}`)

	tables := newExtractor(t).Extract(doc)
	require.Len(t, tables, 2)
	assert.Equal(t, "root.trialbalance.rows", tables[0].Path)
	assert.Equal(t, "rows", tables[0].Name)
	assert.Equal(t, 3, tables[0].Size())
	assert.Equal(t, "root.meta.items", tables[1].Path)
	assert.Greater(t, tables[0].Score, tables[1].Score)
}

func TestExtract_Scoring(t *testing.T) {
	e := newExtractor(t)
	tests := []struct {
		name string
		key  string
		size int
		want int
	}{
		{name: "plain", key: "root.data", size: 7, want: 7},
		{name: "trial token", key: "root.trialbalance", size: 1, want: 10001},
		{name: "tb token", key: "root.tb_report", size: 1, want: 10001},
		{name: "values segment", key: "root.data[0].values", size: 2, want: 5002},
		{name: "values not last", key: "root.values.data", size: 2, want: 2},
		{name: "records", key: "root.Records", size: 0, want: 2000},
		{name: "all bonuses", key: "root.trial[0].items[1].values", size: 1, want: 17001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := Table{Key: tt.key, Rows: make([]*document.Record, tt.size)}
			assert.Equal(t, tt.want, e.Score(tbl))
		})
	}
}

func TestExtract_TiesKeepTraversalOrder(t *testing.T) {
	doc := parse(t, `{"b":[{"x":1}],"a":[{"y":1}],"c":{"d":[{"z":1}]}}`)

	tables := newExtractor(t).Extract(doc)
	require.Len(t, tables, 3)
	assert.Equal(t, "root.b", tables[0].Path)
	assert.Equal(t, "root.a", tables[1].Path)
	assert.Equal(t, "root.c.d", tables[2].Path)
}

func TestExtract_NestedTables(t *testing.T) {
	doc := parse(t, `{"trialbalance":[{"account_transactions":[{"name":"Assets","account_transactions":[{"account_code":"1000","name":"Cash","values":[{"net_debit_total":"1,250.00","net_credit_total":""}]}]}]}]}`)

	tables := newExtractor(t).Extract(doc)
	require.Len(t, tables, 4)

	paths := make([]string, len(tables))
	for i, tbl := range tables {
		paths[i] = tbl.Path
	}
	assert.Equal(t, []string{
		"root.trialbalance",
		"root.trialbalance[0].account_transactions",
		"root.trialbalance[0].account_transactions[0].account_transactions",
		"root.trialbalance[0].account_transactions[0].account_transactions[0].values",
	}, paths)

	cash := tables[2]
	require.Len(t, cash.Rows, 1)
	assert.Equal(t, []string{"account_code", "name", "values"}, cash.Rows[0].Keys())
	v, _ := cash.Rows[0].Get("values")
	assert.Equal(t, "[1 items]", v.Text())
	require.Len(t, cash.Sources, 1)
	assert.Equal(t, document.KindObject, cash.Sources[0].Kind())

	assert.LessOrEqual(t, len(tables[3].Key), DefaultKeyChars)
	assert.Equal(t, "values", tables[3].Name)
}

func TestExtract_NoTables(t *testing.T) {
	e := newExtractor(t)
	for _, in := range []string{`{"code":0,"message":"ok"}`, `[1,2,3]`, `[[{"a":1}]]`, `"x"`, `[]`} {
		tables := e.Extract(parse(t, in))
		if in == `[[{"a":1}]]` {
			require.Len(t, tables, 1, in)
			assert.Equal(t, "root[0]", tables[0].Path)
			continue
		}
		assert.Empty(t, tables, in)
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		name string
		key  string
		rank int
		want string
	}{
		{name: "last segment", key: "root.report.accounts", want: "accounts"},
		{name: "index brackets stripped", key: "root.data[3].lines[12]", want: "lines"},
		{name: "illegal characters", key: "root.a:b/c?d*e", want: "a b c d e"},
		{name: "whitespace collapsed", key: "root.net   debit", want: "net debit"},
		{name: "apostrophes trimmed", key: "root.'quoted'", want: "quoted"},
		{name: "empty falls back", key: "root.[0]", rank: 2, want: "Sheet3"},
		{name: "long names truncated", key: "root." + strings.Repeat("n", 40), want: strings.Repeat("n", 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SheetName(tt.key, tt.rank))
		})
	}
}

func TestTrimLeft(t *testing.T) {
	assert.Equal(t, "abc", trimLeft("abc", 5))
	assert.Equal(t, "bc", trimLeft("abc", 2))
	assert.Equal(t, "c", trimLeft("aéc", 2))
}

func TestTopLevelKeys(t *testing.T) {
	assert.Equal(t, []string{"code", "message"}, TopLevelKeys(parse(t, `{"code":1,"message":"x"}`)))
	assert.Nil(t, TopLevelKeys(parse(t, `[1]`)))
}
