package ics

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "iconcal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 1000

// Occurrence is one concrete instance of a (possibly recurring) event.
// Start and End stay in the event's own location; End is exclusive.
type Occurrence struct {
	SourceID string
	UID      string
	Summary  string
	AllDay   bool
	Start    time.Time
	End      time.Time
}

// ExpandYear returns every occurrence of events that intersects the
// calendar year, sorted by start. RRULEs are expanded with EXDATEs removed
// and RECURRENCE-ID overrides applied. maxPerEvent caps runaway rules; zero
// uses the default.
func ExpandYear(events []ParsedEvent, year, maxPerEvent int) []Occurrence {
	if maxPerEvent <= 0 {
		maxPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	var out []Occurrence
	for uid, evs := range bases {
		for _, ev := range evs {
			occ, err := expandEvent(ev, overrides[uid], year, maxPerEvent)
			if err != nil {
				appLog.Warn("ics expand skipped event", "uid", uid, "err", err)
				continue
			}
			out = append(out, occ...)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].UID < out[j].UID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, year, maxPerEvent int) ([]Occurrence, error) {
	loc := ev.Start.Location()
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	to := time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc)

	if ev.RawRRule == "" {
		start, end, base := ev.Start, ev.End, ev
		if o, ok := findOverride(overrides, start); ok {
			start, end, base = o.Start, o.End, o
		}
		if !intersects(start, end, from, to) {
			return nil, nil
		}
		return []Occurrence{makeOccurrence(base, start, end)}, nil
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", ev.RawRRule, err)
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(loc))
	}

	// Look back by the event length so instances that started in the
	// previous year but spill into this one are kept.
	duration := ev.End.Sub(ev.Start)
	starts := set.Between(from.Add(-duration), to, true)
	if len(starts) > maxPerEvent {
		appLog.Warn("ics expand truncated", "uid", ev.UID, "cap", maxPerEvent)
		starts = starts[:maxPerEvent]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		start, end, base := s, s.Add(duration), ev
		if ev.AllDay {
			day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
			start, end = day, day.Add(duration)
		}
		if o, ok := findOverride(overrides, start); ok {
			start, end, base = o.Start, o.End, o
		}
		if !intersects(start, end, from, to) {
			continue
		}
		out = append(out, makeOccurrence(base, start, end))
	}
	return out, nil
}

// findOverride matches a RECURRENCE-ID against an instance start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func makeOccurrence(ev ParsedEvent, start, end time.Time) Occurrence {
	return Occurrence{
		SourceID: ev.Source.ID,
		UID:      ev.UID,
		Summary:  ev.Summary,
		AllDay:   ev.AllDay,
		Start:    start,
		End:      end,
	}
}

// intersects treats [start, end) as half open; zero-length events count when
// start falls in the window.
func intersects(start, end, from, to time.Time) bool {
	if !end.After(start) {
		return !start.Before(from) && start.Before(to)
	}
	return start.Before(to) && end.After(from)
}
