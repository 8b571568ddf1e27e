package asset

import (
	"context"
	"time"
)

// SpecialCaseResolver computes the active dates of a movable event for a
// year. Implementations may block on I/O and should honour ctx.
type SpecialCaseResolver interface {
	Resolve(ctx context.Context, year int) (start, end time.Time, err error)
}

// SpecialCaseRegistry locates the resolver registered for a special-case id.
type SpecialCaseRegistry interface {
	Lookup(id string) (SpecialCaseResolver, bool)
}

// Resolver turns identifiers into concrete date ranges for a reference
// year. It holds no mutable state and is safe for concurrent use as long as
// its registry is.
type Resolver struct {
	specials SpecialCaseRegistry
}

// NewResolver returns a Resolver that looks up special cases in reg. A nil
// registry treats every special case as unknown.
func NewResolver(reg SpecialCaseRegistry) *Resolver {
	return &Resolver{specials: reg}
}

// Resolve computes the inclusive date range id covers in year.
//
// Unbounded start days resolve to the 1st of the start month and unbounded
// end days to the last day of the end month in year. Spans that would end
// before they start fail with ErrUnsupportedYearWrap. Special cases are
// delegated to the registry without retry or caching.
func (r *Resolver) Resolve(ctx context.Context, id Identifier, year int) (Range, error) {
	switch id.Kind {
	case KindSingleDate:
		d, err := fixedDate(id, year, id.StartMonth, id.StartDay)
		if err != nil {
			return Range{}, err
		}
		return Range{Start: d, End: d}, nil

	case KindSingleMonth:
		return Range{
			Start: Date(year, id.StartMonth, 1),
			End:   Date(year, id.StartMonth, LastDayOf(id.StartMonth, year)),
		}, nil

	case KindDateSpan, KindMonthSpan:
		return resolveSpan(id, year)

	case KindSpecialCase:
		return r.resolveSpecial(ctx, id, year)

	default:
		return Range{}, &ResolveError{ID: id, Year: year, Err: ErrMalformedIdentifier}
	}
}

// Contains reports whether the calendar date of date lies within the range
// id resolves to for year. Resolution errors are returned unchanged.
func (r *Resolver) Contains(ctx context.Context, id Identifier, date time.Time, year int) (bool, error) {
	rng, err := r.Resolve(ctx, id, year)
	if err != nil {
		return false, err
	}
	return rng.Contains(date), nil
}

func resolveSpan(id Identifier, year int) (Range, error) {
	start := Date(year, id.StartMonth, 1)
	if id.StartDay != Unbounded {
		d, err := fixedDate(id, year, id.StartMonth, id.StartDay)
		if err != nil {
			return Range{}, err
		}
		start = d
	}

	end := Date(year, id.EndMonth, LastDayOf(id.EndMonth, year))
	if id.EndDay != Unbounded {
		d, err := fixedDate(id, year, id.EndMonth, id.EndDay)
		if err != nil {
			return Range{}, err
		}
		end = d
	}

	if start.After(end) {
		return Range{}, &ResolveError{ID: id, Year: year, Err: ErrUnsupportedYearWrap}
	}
	return Range{Start: start, End: end}, nil
}

// fixedDate rejects days that time.Date would silently roll over.
func fixedDate(id Identifier, year int, month time.Month, day Day) (time.Time, error) {
	if int(day) > LastDayOf(month, year) {
		return time.Time{}, &ResolveError{ID: id, Year: year, Err: ErrNonexistentDate}
	}
	return Date(year, month, int(day)), nil
}

func (r *Resolver) resolveSpecial(ctx context.Context, id Identifier, year int) (Range, error) {
	if r.specials == nil {
		return Range{}, &ResolveError{ID: id, Year: year, Err: ErrUnknownSpecialCase}
	}
	sr, ok := r.specials.Lookup(id.SpecialID)
	if !ok {
		return Range{}, &ResolveError{ID: id, Year: year, Err: ErrUnknownSpecialCase}
	}

	start, end, err := sr.Resolve(ctx, year)
	if err != nil {
		return Range{}, &ResolveError{ID: id, Year: year, Err: ErrSpecialCaseFailed, Cause: err}
	}
	return Range{Start: DateOf(start), End: DateOf(end)}, nil
}
