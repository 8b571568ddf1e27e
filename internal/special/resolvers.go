package special

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"iconcal/internal/asset"
	"iconcal/internal/ics"
)

// ErrNoOccurrence is returned when a rule or feed has nothing in the year.
var ErrNoOccurrence = errors.New("no occurrence in year")

// Window widens an anchor date into a date range: Start = anchor +
// StartOffset days, End = anchor + (Days-1) + EndOffset days.
type Window struct {
	StartOffset int
	EndOffset   int
	Days        int
}

func (w Window) apply(anchorStart, anchorEnd time.Time) (time.Time, time.Time) {
	start := asset.DateOf(anchorStart).AddDate(0, 0, w.StartOffset)
	end := asset.DateOf(anchorEnd)
	if w.Days > 1 {
		end = asset.DateOf(anchorStart).AddDate(0, 0, w.Days-1)
	}
	return start, end.AddDate(0, 0, w.EndOffset)
}

// EasterResolver anchors on Western (Gregorian) Easter Sunday.
type EasterResolver struct {
	Window Window
}

func (e EasterResolver) Resolve(_ context.Context, year int) (time.Time, time.Time, error) {
	sunday, err := easterSunday(year)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end := e.Window.apply(sunday, sunday)
	return start, end, nil
}

func easterSunday(year int) (time.Time, error) {
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.YEARLY,
		Dtstart:  asset.Date(year, time.January, 1),
		Byeaster: []int{0},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("easter rule: %w", err)
	}
	return firstInYear(r, year)
}

// RRuleResolver anchors on the first occurrence of a yearly RRULE such as
// "FREQ=YEARLY;BYMONTH=11;BYDAY=+4TH" (US Thanksgiving).
type RRuleResolver struct {
	Rule   string
	Window Window
}

func (rr RRuleResolver) Resolve(_ context.Context, year int) (time.Time, time.Time, error) {
	r, err := rrule.StrToRRule(rr.Rule)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse rrule %q: %w", rr.Rule, err)
	}
	r.DTStart(asset.Date(year, time.January, 1))

	anchor, err := firstInYear(r, year)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end := rr.Window.apply(anchor, anchor)
	return start, end, nil
}

func firstInYear(r *rrule.RRule, year int) (time.Time, error) {
	from := asset.Date(year, time.January, 1)
	to := asset.Date(year, time.December, 31)
	occ := r.Between(from, to, true)
	if len(occ) == 0 {
		return time.Time{}, fmt.Errorf("%w %d", ErrNoOccurrence, year)
	}
	return occ[0], nil
}

// FeedFetcher is the part of ics.Fetcher an ICSResolver needs.
type FeedFetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// ICSResolver anchors on the first event of an iCalendar feed whose
// SUMMARY matches, compared case-insensitively.
type ICSResolver struct {
	ID      string
	URL     string
	Summary string
	Window  Window
	Fetcher FeedFetcher
}

func (r ICSResolver) Resolve(ctx context.Context, year int) (time.Time, time.Time, error) {
	res, err := r.Fetcher.FetchOne(ctx, ics.Source{ID: r.ID, URL: r.URL})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	events, err := ics.ParseICS(res.Source, res.Body)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	want := strings.TrimSpace(r.Summary)
	for _, occ := range ics.ExpandYear(events, year, 0) {
		if !strings.EqualFold(occ.Summary, want) {
			continue
		}
		// iCalendar end times are exclusive.
		last := occ.Start
		if occ.End.After(occ.Start) {
			last = occ.End.Add(-time.Nanosecond)
		}
		start, end := r.Window.apply(occ.Start, last)
		return start, end, nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("%q: %w %d", want, ErrNoOccurrence, year)
}
