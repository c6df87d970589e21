package workbook

import (
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/trial-balance-export/internal/extract"
)

// maxCollisions bounds the " (n)" suffixes tried before falling back to a
// clock-derived suffix.
const maxCollisions = 99

// Namer hands out unique sheet names. Comparison is case-insensitive, as
// spreadsheet applications treat sheet names.
type Namer struct {
	seen map[string]struct{}
	now  func() time.Time
}

// NewNamer returns an empty Namer. now supplies the last-resort suffix.
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{seen: make(map[string]struct{}), now: now}
}

// Unique returns a sheet name derived from name that has not been handed out
// before and reserves it.
func (n *Namer) Unique(name string) string {
	name = extract.Sanitize(name, len(n.seen))
	if n.take(name) {
		return name
	}

	for i := 2; i <= maxCollisions; i++ {
		if candidate := withSuffix(name, " ("+strconv.Itoa(i)+")"); n.take(candidate) {
			return candidate
		}
	}

	stamp := n.now().UnixNano()
	for {
		candidate := withSuffix(name, " "+strconv.FormatInt(stamp%1_000_000, 10))
		if n.take(candidate) {
			return candidate
		}
		stamp++
	}
}

// Taken reports whether name has already been handed out.
func (n *Namer) Taken(name string) bool {
	_, ok := n.seen[strings.ToLower(name)]
	return ok
}

func (n *Namer) take(name string) bool {
	key := strings.ToLower(name)
	if _, ok := n.seen[key]; ok {
		return false
	}
	n.seen[key] = struct{}{}
	return true
}

func withSuffix(base, suffix string) string {
	room := extract.MaxSheetNameLen - len([]rune(suffix))
	return extract.TruncateName(base, room) + suffix
}
