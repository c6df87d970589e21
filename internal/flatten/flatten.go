// Package flatten reduces nested report records to single-level rows of scalars.
package flatten

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/trial-balance-export/internal/document"
)

// Defaults applied by DefaultOptions.
const (
	DefaultMaxDepth     = 4
	DefaultMaxCellChars = 32000
)

// Placeholders written in place of structure that is not expanded.
const (
	TruncationMarker  = "…(truncated)"
	NestedPlaceholder = "[nested object]"
	ObjectPlaceholder = "[object]"

	// DefaultKey names the field of a record built from a bare scalar.
	DefaultKey = "value"

	// JoinSeparator separates the items of a scalar array.
	JoinSeparator = "; "
)

// DefaultNoisyPatterns match paths that carry transaction histories, audit
// trails, column layout and previous-value snapshots.
var DefaultNoisyPatterns = []string{
	`account_transactions`,
	`previous_values`,
	`account_type_col_span_list`,
	`columns`,
	`history`,
	`audit`,
}

var itemsPlaceholderRe = regexp.MustCompile(`^\[\d+ items\]$`)

// Options tunes a Flattener.
type Options struct {
	NoisyPatterns []string
	MaxDepth      int
	MaxCellChars  int
}

// DefaultOptions returns the stock flattening limits.
func DefaultOptions() Options {
	return Options{
		MaxDepth:      DefaultMaxDepth,
		MaxCellChars:  DefaultMaxCellChars,
		NoisyPatterns: append([]string(nil), DefaultNoisyPatterns...),
	}
}

// Validate checks the options for usable values.
func (o Options) Validate() error {
	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative: %d", o.MaxDepth)
	}
	if o.MaxCellChars <= 0 {
		return fmt.Errorf("max cell chars must be positive: %d", o.MaxCellChars)
	}
	for _, p := range o.NoisyPatterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return fmt.Errorf("invalid noisy pattern %q: %w", p, err)
		}
	}
	return nil
}

// Flattener converts nested values into Records. It holds no per-call state
// and is safe for concurrent use.
type Flattener struct {
	noisy []*regexp.Regexp
	opts  Options
}

// New returns a Flattener for opts.
func New(opts Options) (*Flattener, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	f := &Flattener{opts: opts}
	for _, p := range opts.NoisyPatterns {
		f.noisy = append(f.noisy, regexp.MustCompile("(?i)"+p))
	}
	return f, nil
}

// Default returns a Flattener using DefaultOptions.
func Default() *Flattener {
	f, err := New(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return f
}

// Flatten converts v into a single-level record. Null input yields an empty record.
func (f *Flattener) Flatten(v document.Value) *document.Record {
	rec := document.NewRecord()
	if v.IsNull() {
		return rec
	}
	f.FlattenInto(rec, v, "", 0)
	return rec
}

// FlattenInto writes v into rec under prefix. depth counts the objects
// already descended through.
func (f *Flattener) FlattenInto(rec *document.Record, v document.Value, prefix string, depth int) {
	key := prefix
	if key == "" {
		key = DefaultKey
	}

	if depth > f.opts.MaxDepth {
		rec.Set(key, document.String(NestedPlaceholder))
		return
	}

	switch v.Kind() {
	case document.KindArray:
		rec.Set(key, f.array(v))
	case document.KindObject:
		for _, m := range v.Members() {
			path := m.Key
			if prefix != "" {
				path = prefix + "." + m.Key
			}

			switch {
			case m.Value.IsContainer() && f.IsNoisy(path):
				rec.Set(path, Summary(m.Value))
			case m.Value.IsContainer():
				f.FlattenInto(rec, m.Value, path, depth+1)
			default:
				rec.Set(path, f.scalar(m.Value))
			}
		}
	default:
		rec.Set(key, f.scalar(v))
	}
}

// IsNoisy reports whether path matches one of the configured noisy patterns.
func (f *Flattener) IsNoisy(path string) bool {
	for _, re := range f.noisy {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Cap truncates s to the configured cell limit, appending TruncationMarker.
func (f *Flattener) Cap(s string) string {
	return Truncate(s, f.opts.MaxCellChars)
}

func (f *Flattener) array(v document.Value) document.Value {
	items := v.Items()
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.IsContainer() {
			return document.String(ItemsPlaceholder(len(items)))
		}
		parts = append(parts, item.Text())
	}
	return document.String(f.Cap(strings.Join(parts, JoinSeparator)))
}

func (f *Flattener) scalar(v document.Value) document.Value {
	if v.Kind() == document.KindString {
		if s := v.Text(); utf8.RuneCountInString(s) > f.opts.MaxCellChars {
			return document.String(f.Cap(s))
		}
	}
	return v
}

// Summary returns the placeholder for a structured value that is not expanded.
func Summary(v document.Value) document.Value {
	if v.Kind() == document.KindArray {
		return document.String(ItemsPlaceholder(v.Len()))
	}
	return document.String(ObjectPlaceholder)
}

// ItemsPlaceholder returns the summary text for an array of n items.
func ItemsPlaceholder(n int) string {
	return "[" + strconv.Itoa(n) + " items]"
}

// IsPlaceholder reports whether v is one of the summaries written by a Flattener.
func IsPlaceholder(v document.Value) bool {
	if v.Kind() != document.KindString {
		return false
	}
	s := v.Text()
	return s == NestedPlaceholder || s == ObjectPlaceholder || itemsPlaceholderRe.MatchString(s)
}

// Truncate shortens s to at most limit runes followed by TruncationMarker.
// Strings within the limit are returned unchanged.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
