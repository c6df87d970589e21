package flatten

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/trial-balance-export/internal/document"
)

func mustParse(t *testing.T, s string) document.Value {
	t.Helper()
	v, err := document.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func TestFlattener_Flatten(t *testing.T) {
	tests := []struct {
		want  map[string]string
		name  string
		input string
		keys  []string
	}{
		{
			name:  "nested objects use dotted paths",
			input: `{"account":{"code":"1000","name":"Cash"},"total":12.5}`,
			keys:  []string{"account.code", "account.name", "total"},
			want:  map[string]string{"account.code": "1000", "account.name": "Cash", "total": "12.5"},
		},
		{
			name:  "scalar arrays are joined",
			input: `{"tags":["a",1,true,null]}`,
			keys:  []string{"tags"},
			want:  map[string]string{"tags": "a; 1; true; "},
		},
		{
			name:  "object arrays are summarised",
			input: `{"lines":[{"x":1},{"x":2}]}`,
			keys:  []string{"lines"},
			want:  map[string]string{"lines": "[2 items]"},
		},
		{
			name:  "mixed arrays are summarised",
			input: `{"mixed":[1,{"x":1},3]}`,
			keys:  []string{"mixed"},
			want:  map[string]string{"mixed": "[3 items]"},
		},
		{
			name:  "noisy object collapses",
			input: `{"audit":{"by":"x"},"name":"Cash"}`,
			keys:  []string{"audit", "name"},
			want:  map[string]string{"audit": "[object]", "name": "Cash"},
		},
		{
			name:  "noisy match is case insensitive on the full path",
			input: `{"meta":{"Account_Transactions":[1,2,3]}}`,
			keys:  []string{"meta.Account_Transactions"},
			want:  map[string]string{"meta.Account_Transactions": "[3 items]"},
		},
		{
			name:  "noisy scalar stays",
			input: `{"history":"none"}`,
			keys:  []string{"history"},
			want:  map[string]string{"history": "none"},
		},
		{
			name:  "bare scalar uses default key",
			input: `"Cash"`,
			keys:  []string{"value"},
			want:  map[string]string{"value": "Cash"},
		},
	}

	f := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.Flatten(mustParse(t, tt.input))
			assert.Equal(t, tt.keys, rec.Keys())
			for k, want := range tt.want {
				v, ok := rec.Get(k)
				require.True(t, ok, k)
				assert.Equal(t, want, v.Text(), k)
				assert.False(t, v.IsContainer(), k)
			}
		})
	}
}

func TestFlattener_NullFieldsStayNull(t *testing.T) {
	rec := Default().Flatten(mustParse(t, `{"a":null,"b":{"c":null}}`))
	a, ok := rec.Get("a")
	require.True(t, ok)
	assert.True(t, a.IsNull())
	c, ok := rec.Get("b.c")
	require.True(t, ok)
	assert.True(t, c.IsNull())
}

func TestFlattener_NullInputIsEmpty(t *testing.T) {
	assert.Equal(t, 0, Default().Flatten(document.Null()).Len())
}

func TestFlattener_DepthCap(t *testing.T) {
	rec := Default().Flatten(mustParse(t, `{"a":{"b":{"c":{"d":{"e":{"f":{"g":1}}}}}}}`))

	v, ok := rec.Get("a.b.c.d.e")
	require.True(t, ok)
	assert.Equal(t, NestedPlaceholder, v.Text())
	assert.Equal(t, []string{"a.b.c.d.e"}, rec.Keys())
}

func TestFlattener_CellCap(t *testing.T) {
	long := strings.Repeat("x", 40000)
	rec := Default().Flatten(document.Object(document.Member{Key: "memo", Value: document.String(long)}))

	v, ok := rec.Get("memo")
	require.True(t, ok)
	got := v.Text()
	assert.LessOrEqual(t, utf8.RuneCountInString(got), DefaultMaxCellChars+utf8.RuneCountInString(TruncationMarker))
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
}

func TestFlattener_CellCapAppliesToJoinedArrays(t *testing.T) {
	f, err := New(Options{MaxDepth: 4, MaxCellChars: 5})
	require.NoError(t, err)

	rec := f.Flatten(mustParse(t, `{"codes":["100","200","300"]}`))
	v, _ := rec.Get("codes")
	assert.Equal(t, "100; "+TruncationMarker, v.Text())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab"+TruncationMarker, Truncate("abc", 2))
	assert.Equal(t, "żó"+TruncationMarker, Truncate("żółw", 2))
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder(document.String("[12 items]")))
	assert.True(t, IsPlaceholder(document.String(ObjectPlaceholder)))
	assert.True(t, IsPlaceholder(document.String(NestedPlaceholder)))
	assert.False(t, IsPlaceholder(document.String("[x items]")))
	assert.False(t, IsPlaceholder(document.Number("12")))
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults", opts: DefaultOptions()},
		{name: "negative depth", opts: Options{MaxDepth: -1, MaxCellChars: 10}, wantErr: true},
		{name: "zero cell cap", opts: Options{MaxDepth: 1}, wantErr: true},
		{name: "bad pattern", opts: Options{MaxDepth: 1, MaxCellChars: 1, NoisyPatterns: []string{"("}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
