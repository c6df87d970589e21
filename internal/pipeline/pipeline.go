package pipeline

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/decode"
	"github.com/Veraticus/trial-balance-export/internal/document"
	"github.com/Veraticus/trial-balance-export/internal/extract"
	"github.com/Veraticus/trial-balance-export/internal/flatten"
	"github.com/Veraticus/trial-balance-export/internal/mapping"
	"github.com/Veraticus/trial-balance-export/internal/model"
	"github.com/Veraticus/trial-balance-export/internal/sniff"
	"github.com/Veraticus/trial-balance-export/internal/workbook"
)

// inlineKey names row fields whose array of objects is folded into the row
// for canonical mapping.
const inlineKey = "values"

// jsonSniffLen is how much of the body is inspected for a JSON opening brace.
const jsonSniffLen = 128

var jsonHeadRe = regexp.MustCompile(`^[\x{FEFF}\s]*[{\[]`)

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithClock sets the clock handed to workbook builders.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// Processor runs payloads through sniffing, decoding, extraction, mapping and
// workbook assembly. It keeps no per-payload state and may be shared between
// goroutines.
type Processor struct {
	flattener *flatten.Flattener
	extractor *extract.Extractor
	mapper    *mapping.Mapper
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
}

// New builds a Processor from cfg.
func New(cfg Config, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	f, err := flatten.New(cfg.Flatten)
	if err != nil {
		return nil, fmt.Errorf("failed to create flattener: %w", err)
	}
	e, err := extract.New(cfg.Extract, f)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	p := &Processor{
		cfg:       cfg,
		flattener: f,
		extractor: e,
		mapper:    mapping.New(cfg.Mapping),
		logger:    slog.Default().With("component", "pipeline"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process converts payload using the configured mode.
func (p *Processor) Process(payload model.RawPayload) (Result, error) {
	return p.ProcessMode(payload, p.cfg.Mode)
}

// ProcessMode converts payload into a workbook laid out by mode. Problems with
// the payload itself are reported through Result.Outcome; the error is only
// set when the workbook cannot be serialised.
func (p *Processor) ProcessMode(payload model.RawPayload, mode Mode) (Result, error) {
	if mode == "" {
		mode = p.cfg.Mode
	}

	guess := sniff.Sniff(payload.Body, payload.ContentType, payload.ContentDisposition)
	if guess.Ambiguous() {
		p.logger.Debug("format guessed", "format", guess.Format, "bytes", payload.Size())
	} else {
		p.logger.Debug("format sniffed", "format", guess.Format, "signal", guess.Signal)
	}

	b := workbook.New(workbook.WithClock(p.now), workbook.WithLogger(p.logger))
	defer func() { _ = b.Close() }()

	res := Result{Guess: guess, SourceType: guess.Format, Mode: mode}

	doc, diag := p.load(payload, guess, &res)
	switch {
	case diag != nil:
		p.addDiagnostic(b, &res, diag)
	case isErrorEnvelope(doc):
		p.addUpstreamError(b, &res, doc)
	default:
		p.addTables(b, &res, doc, mode)
	}

	data, err := b.Bytes()
	if err != nil {
		return res, fmt.Errorf("failed to serialise workbook: %w", err)
	}
	res.Workbook = data

	if res.OK() {
		p.logger.Debug("payload processed", "source", res.SourceType, "tables", res.TablesFound, "rows", res.Rows())
	} else {
		p.logger.Warn("diagnostic workbook produced", "source", res.SourceType, "outcome", res.Outcome, "reason", res.Diagnostic.Message)
	}
	return res, nil
}

// load parses or decodes the body. A non-nil diagnostic means no document
// could be produced; res.Outcome is set accordingly.
func (p *Processor) load(payload model.RawPayload, guess sniff.Guess, res *Result) (document.Value, *Diagnostic) {
	if p.looksJSON(payload, guess) {
		doc, err := document.Parse(payload.Body)
		if err == nil {
			res.SourceType = sniff.FormatJSON
			return doc, nil
		}
		if !guess.Format.IsSpreadsheet() {
			res.SourceType = sniff.FormatJSON
			res.Outcome = OutcomeParseFailure
			return document.Value{}, &Diagnostic{
				Message: "JSON parse failed: " + err.Error(),
				Head:    p.head(payload.Body),
			}
		}
		p.logger.Debug("json parse failed, trying spreadsheet decoder", "format", guess.Format, "error", err)
	}

	if !guess.Format.IsSpreadsheet() {
		res.Outcome = OutcomeUnsupported
		return document.Value{}, &Diagnostic{
			Message: fmt.Sprintf("%s payloads cannot be tabulated; the raw file is archived unchanged", guess.Format),
		}
	}

	doc, err := decode.Decode(guess.Format, payload.Body, p.cfg.Decode)
	if err != nil {
		res.Outcome = OutcomeParseFailure
		return document.Value{}, &Diagnostic{
			Message: fmt.Sprintf("%s decode failed: %v", guess.Format, err),
			Head:    p.head(payload.Body),
		}
	}
	return doc, nil
}

func (p *Processor) looksJSON(payload model.RawPayload, guess sniff.Guess) bool {
	if guess.Format == sniff.FormatJSON {
		return true
	}
	if strings.Contains(strings.ToLower(payload.ContentType), "json") {
		return true
	}
	head := payload.Body
	if len(head) > jsonSniffLen {
		head = head[:jsonSniffLen]
	}
	return jsonHeadRe.Match(head)
}

func (p *Processor) addTables(b *workbook.Builder, res *Result, doc document.Value, mode Mode) {
	tables := p.extractor.Extract(doc)
	res.TablesFound = len(tables)
	p.logger.Debug("tables extracted", "count", len(tables))

	if len(tables) == 0 {
		res.Outcome = OutcomeNoTableFound
		p.addDiagnostic(b, res, &Diagnostic{
			Message:      "no array of records found in the response",
			TopLevelKeys: extract.TopLevelKeys(doc),
		})
		return
	}

	if mode == ModeSheets {
		p.addSheets(b, res, tables)
		return
	}
	p.addCanonical(b, res, tables)
}

func (p *Processor) addSheets(b *workbook.Builder, res *Result, tables []extract.Table) {
	limit := p.cfg.MaxSheets
	if limit > len(tables) {
		limit = len(tables)
	}

	names, err := b.AddTables(tables, limit)
	for i, name := range names {
		res.Sheets = append(res.Sheets, SheetSummary{
			Name:  name,
			Path:  tables[i].Path,
			Rows:  tables[i].Size(),
			Score: tables[i].Score,
		})
	}
	if err != nil {
		res.Outcome = OutcomeBuildFailure
		p.addDiagnostic(b, res, &Diagnostic{Message: "workbook build failed: " + err.Error()})
		return
	}
	res.Outcome = OutcomeOK
}

func (p *Processor) addCanonical(b *workbook.Builder, res *Result, tables []extract.Table) {
	var (
		chosen   *extract.Table
		rows     []mapping.Row
		stats    mapping.Stats
		fallback = -1
	)

	for i := range tables {
		mapped, st := p.mapper.MapRows(p.canonicalRecords(tables[i]))
		if st.WithCode > 0 {
			chosen, rows, stats = &tables[i], mapped, st
			break
		}
		if st.Retained > 0 && fallback < 0 {
			fallback = i
		}
	}
	if chosen == nil && fallback >= 0 {
		chosen = &tables[fallback]
		rows, stats = p.mapper.MapRows(p.canonicalRecords(*chosen))
	}

	if chosen == nil {
		res.Outcome = OutcomeNoRowsMapped
		if name, err := b.AddCanonical(workbook.CanonicalSheet, nil); err == nil {
			res.Sheets = append(res.Sheets, SheetSummary{Name: name})
		}
		p.addDiagnostic(b, res, &Diagnostic{
			Message: fmt.Sprintf("%d tables found but no row carried an account name or code", len(tables)),
		})
		return
	}

	p.logger.Debug("canonical table chosen",
		"path", chosen.Path,
		"rows", stats.Retained,
		"with_code", stats.WithCode,
		"substring_hits", stats.SubstringHits)
	if stats.SubstringHits > 0 {
		p.logger.Debug("broad alias matches used", "rows", stats.SubstringHits, "path", chosen.Path)
	}

	name, err := b.AddCanonical(workbook.CanonicalSheet, rows)
	if err != nil {
		res.Outcome = OutcomeBuildFailure
		p.addDiagnostic(b, res, &Diagnostic{Message: "workbook build failed: " + err.Error()})
		return
	}

	res.Outcome = OutcomeOK
	res.Canonical = &CanonicalSummary{Path: chosen.Path, Stats: stats}
	res.Sheets = append(res.Sheets, SheetSummary{
		Name:  name,
		Path:  chosen.Path,
		Rows:  len(rows),
		Score: chosen.Score,
	})
}

// canonicalRecords returns the table rows with any values array folded in
// under "values.". The first element wins for each key.
func (p *Processor) canonicalRecords(t extract.Table) []*document.Record {
	out := make([]*document.Record, len(t.Rows))
	for i, rec := range t.Rows {
		out[i] = rec
		if i >= len(t.Sources) {
			continue
		}
		nested, ok := t.Sources[i].Get(inlineKey)
		if !ok || nested.Kind() != document.KindArray {
			continue
		}

		merged := document.NewRecord()
		for _, f := range rec.Fields() {
			merged.Set(f.Key, f.Value)
		}
		for _, item := range nested.Items() {
			if item.Kind() != document.KindObject {
				continue
			}
			for _, f := range p.flattener.Flatten(item).Fields() {
				key := inlineKey + "." + f.Key
				if !merged.Has(key) {
					merged.Set(key, f.Value)
				}
			}
		}
		out[i] = merged
	}
	return out
}

func (p *Processor) addUpstreamError(b *workbook.Builder, res *Result, doc document.Value) {
	res.Outcome = OutcomeUpstreamError

	code, _ := doc.Get("code")
	message, _ := doc.Get("message")
	diag := &Diagnostic{
		Message:      "upstream error: " + message.Text(),
		UpstreamCode: code.Text(),
		TopLevelKeys: extract.TopLevelKeys(doc),
	}
	res.Diagnostic = diag

	var lines []workbook.Line
	for _, m := range doc.Members() {
		if m.Value.IsContainer() {
			continue
		}
		lines = append(lines, workbook.Line{Key: m.Key, Value: m.Value.Text()})
	}
	if name, err := b.AddInfo(workbook.ErrorSheet, lines); err == nil {
		res.Sheets = append(res.Sheets, SheetSummary{Name: name})
	}
}

func (p *Processor) addDiagnostic(b *workbook.Builder, res *Result, diag *Diagnostic) {
	res.Diagnostic = diag

	lines := []workbook.Line{
		{Key: "status", Value: string(res.Outcome)},
		{Key: "reason", Value: diag.Message},
		{Key: "source_type", Value: string(res.SourceType)},
		{Key: "detected_by", Value: string(res.Guess.Signal)},
	}
	if len(diag.TopLevelKeys) > 0 {
		lines = append(lines, workbook.Line{Key: "top_level_keys", Value: strings.Join(diag.TopLevelKeys, ", ")})
	}
	if diag.Head != "" {
		lines = append(lines, workbook.Line{Key: "head", Value: diag.Head})
	}

	if name, err := b.AddInfo(workbook.InfoSheet, lines); err == nil {
		res.Sheets = append(res.Sheets, SheetSummary{Name: name})
	}
}

// head returns a printable preview of the start of body.
func (p *Processor) head(body []byte) string {
	n := p.cfg.PreviewBytes
	if n > len(body) {
		n = len(body)
	}
	preview := bytes.ToValidUTF8(body[:n], []byte("\uFFFD"))
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, string(preview))
}

// isErrorEnvelope reports whether doc is an upstream error object: a truthy
// code and message with no report data beside them.
func isErrorEnvelope(doc document.Value) bool {
	if doc.Kind() != document.KindObject {
		return false
	}
	truthy := func(key string) bool {
		v, ok := doc.Get(key)
		return ok && v.Truthy()
	}
	return truthy("code") && truthy("message") && !truthy("trialbalance") && !truthy("data")
}

// Describe renders a one-line summary of r for logs and CLI output.
func Describe(r Result) string {
	var sb strings.Builder
	sb.WriteString(string(r.SourceType))
	sb.WriteString(" → ")
	sb.WriteString(string(r.Outcome))
	if r.Canonical != nil {
		sb.WriteString(" (")
		sb.WriteString(strconv.Itoa(r.Canonical.Stats.Retained))
		sb.WriteString(" rows, ")
		sb.WriteString(strconv.Itoa(r.Canonical.Stats.WithCode))
		sb.WriteString(" with code)")
	} else if r.Diagnostic != nil {
		sb.WriteString(": ")
		sb.WriteString(r.Diagnostic.Message)
	}
	return sb.String()
}
