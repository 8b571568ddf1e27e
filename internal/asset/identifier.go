// Package asset parses date-coded asset filenames and resolves them to
// calendar ranges.
//
// Supported filename forms:
//
//	01-04-[April Fools].gif      a single day (1st of April)
//	01-12-23-12-[Advent].gif     a span of days (1st to 23rd of December)
//	x-06-[Pride Month].gif       a whole month (June)
//	x-06-x-07-[Summer].gif       a span of whole months (June to July)
//	x-01-25-01-[Partial].png     a span with an open start (1st to 25th of January)
//	special_EA-[Easter].gif      a movable date computed by a registered resolver
package asset

import (
	"fmt"
	"time"
)

// Kind is the shape of an asset identifier.
type Kind int

const (
	KindSingleDate Kind = iota + 1
	KindDateSpan
	KindSingleMonth
	KindMonthSpan
	KindSpecialCase
)

func (k Kind) String() string {
	switch k {
	case KindSingleDate:
		return "single_date"
	case KindDateSpan:
		return "date_span"
	case KindSingleMonth:
		return "single_month"
	case KindMonthSpan:
		return "month_span"
	case KindSpecialCase:
		return "special_case"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText lets Kind appear as a string in JSON responses.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Day is a day-of-month token. Unbounded stands for the "x" token: the first
// day of the month in start position, the last day in end position.
type Day int

const Unbounded Day = 0

func (d Day) String() string {
	if d == Unbounded {
		return "x"
	}
	return fmt.Sprintf("%02d", int(d))
}

// Format is the declared image format of an asset.
type Format string

const (
	FormatGIF Format = "gif"
	FormatPNG Format = "png"
)

var allowedFormats = map[string]Format{
	"gif": FormatGIF,
	"png": FormatPNG,
}

// Identifier is the parsed, immutable form of an asset filename.
//
// Exactly one of SpecialID or StartMonth is set. EndMonth is zero for the
// single forms. Identifier values are comparable with ==.
type Identifier struct {
	Kind Kind

	StartDay   Day
	StartMonth time.Month
	EndDay     Day
	EndMonth   time.Month

	SpecialID string

	Label  string
	Format Format
}

// String renders the identifier back in filename form.
func (id Identifier) String() string {
	var prefix string
	switch id.Kind {
	case KindSingleDate, KindSingleMonth:
		prefix = fmt.Sprintf("%s-%02d", id.StartDay, int(id.StartMonth))
	case KindDateSpan, KindMonthSpan:
		prefix = fmt.Sprintf("%s-%02d-%s-%02d", id.StartDay, int(id.StartMonth), id.EndDay, int(id.EndMonth))
	case KindSpecialCase:
		prefix = specialPrefix + id.SpecialID
	}
	return prefix + "-[" + id.Label + "]." + string(id.Format)
}

// Range is an inclusive span of calendar dates at midnight UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of t lies within r.
func (r Range) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns every date in the range, in order.
func (r Range) Days() []time.Time {
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (r Range) String() string {
	return "[" + r.Start.Format(time.DateOnly) + ", " + r.End.Format(time.DateOnly) + "]"
}
