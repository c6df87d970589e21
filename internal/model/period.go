package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for report dates.
const DateLayout = "2006-01-02"

// Period is an inclusive reporting date range.
type Period struct {
	From time.Time
	To   time.Time
}

// ParsePeriod parses two YYYY-MM-DD dates and checks their order.
func ParsePeriod(from, to string) (Period, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return Period{}, fmt.Errorf("from date %q must be YYYY-MM-DD", from)
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return Period{}, fmt.Errorf("to date %q must be YYYY-MM-DD", to)
	}
	if t.Before(f) {
		return Period{}, fmt.Errorf("to date %s is before from date %s", to, from)
	}
	return Period{From: f, To: t}, nil
}

// PreviousMonth returns the full calendar month before now.
func PreviousMonth(now time.Time) Period {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		From: first.AddDate(0, -1, 0),
		To:   first.AddDate(0, 0, -1),
	}
}

// FromString returns From as YYYY-MM-DD.
func (p Period) FromString() string { return p.From.Format(DateLayout) }

// ToString returns To as YYYY-MM-DD.
func (p Period) ToString() string { return p.To.Format(DateLayout) }

// Month labels the period by the month of its start date (YYYY-MM).
func (p Period) Month() string { return p.From.Format("2006-01") }
