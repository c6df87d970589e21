// Package sniff classifies report payloads whose declared format cannot be trusted.
package sniff

import (
	"bytes"
	"mime"
	"net/url"
	"regexp"
	"strings"
)

// Format is the detected payload format. Its string value doubles as the file extension.
type Format string

// Known formats.
const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
)

// MIME types for each format.
const (
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMEXLS  = "application/vnd.ms-excel"
	MIMECSV  = "text/csv"
	MIMEPDF  = "application/pdf"
	MIMEJSON = "application/json"
)

// MIME returns the canonical media type of f.
func (f Format) MIME() string {
	switch f {
	case FormatXLSX:
		return MIMEXLSX
	case FormatXLS:
		return MIMEXLS
	case FormatCSV:
		return MIMECSV
	case FormatPDF:
		return MIMEPDF
	default:
		return MIMEJSON
	}
}

// IsSpreadsheet reports whether f decodes into workbook rows.
func (f Format) IsSpreadsheet() bool {
	return f == FormatXLSX || f == FormatXLS || f == FormatCSV
}

// Signal names the evidence that decided a Guess.
type Signal string

// Signals, highest precedence first.
const (
	SignalFilename    Signal = "filename"
	SignalContentType Signal = "content-type"
	SignalMagic       Signal = "magic"
	SignalDefault     Signal = "default"
)

// Guess is the outcome of sniffing a payload.
type Guess struct {
	Format Format
	MIME   string
	Signal Signal
}

// Ambiguous reports whether no signal matched and the guess fell back to JSON.
func (g Guess) Ambiguous() bool { return g.Signal == SignalDefault }

var (
	magicZIP = []byte{0x50, 0x4B, 0x03, 0x04}
	magicOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	magicPDF = []byte("%PDF")

	filenameRe = regexp.MustCompile(`(?i)filename\*=UTF-8''([^;]+)|filename="([^"]+)"|filename=([^;]+)`)

	extensionOrder = []Format{FormatXLSX, FormatXLS, FormatCSV, FormatPDF, FormatJSON}
)

// Sniff classifies data using, in order: the filename in a Content-Disposition
// header, the declared Content-Type, the leading magic bytes, and finally a
// JSON fallback. It never fails.
func Sniff(data []byte, contentType, contentDisposition string) Guess {
	if name := Filename(contentDisposition); name != "" {
		for _, f := range extensionOrder {
			if strings.HasSuffix(name, "."+string(f)) {
				return guess(f, SignalFilename)
			}
		}
	}

	if f, ok := fromContentType(contentType); ok {
		return guess(f, SignalContentType)
	}

	switch {
	case bytes.HasPrefix(data, magicZIP):
		return guess(FormatXLSX, SignalMagic)
	case bytes.HasPrefix(data, magicOLE):
		return guess(FormatXLS, SignalMagic)
	case bytes.HasPrefix(data, magicPDF):
		return guess(FormatPDF, SignalMagic)
	}

	return guess(FormatJSON, SignalDefault)
}

// Filename extracts the lower-cased filename from a Content-Disposition header.
// Both filename*=UTF-8''... and filename="..." forms are understood.
func Filename(contentDisposition string) string {
	if strings.TrimSpace(contentDisposition) == "" {
		return ""
	}

	if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
		if name := params["filename"]; name != "" {
			return strings.ToLower(name)
		}
	}

	m := filenameRe.FindStringSubmatch(contentDisposition)
	if m == nil {
		return ""
	}
	var raw string
	for _, g := range m[1:] {
		if g != "" {
			raw = g
			break
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func fromContentType(contentType string) (Format, bool) {
	ct := strings.ToLower(contentType)
	switch {
	case ct == "":
		return "", false
	case strings.Contains(ct, "officedocument.spreadsheetml.sheet"):
		return FormatXLSX, true
	case strings.Contains(ct, "vnd.ms-excel"):
		return FormatXLS, true
	case strings.Contains(ct, "text/csv"), strings.Contains(ct, "application/csv"):
		return FormatCSV, true
	case strings.Contains(ct, "pdf"):
		return FormatPDF, true
	case strings.Contains(ct, "json"):
		return FormatJSON, true
	default:
		return "", false
	}
}

func guess(f Format, s Signal) Guess {
	return Guess{Format: f, MIME: f.MIME(), Signal: s}
}
