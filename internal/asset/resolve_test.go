package asset_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconcal/internal/asset"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type resolverFunc func(ctx context.Context, year int) (time.Time, time.Time, error)

func (f resolverFunc) Resolve(ctx context.Context, year int) (time.Time, time.Time, error) {
	return f(ctx, year)
}

type mapRegistry map[string]asset.SpecialCaseResolver

func (m mapRegistry) Lookup(id string) (asset.SpecialCaseResolver, bool) {
	r, ok := m[id]
	return r, ok
}

func mustParse(t *testing.T, filename string) asset.Identifier {
	t.Helper()
	id, err := asset.Parse(filename)
	require.NoError(t, err)
	return id
}

func date(year int, month time.Month, day int) time.Time {
	return asset.Date(year, month, day)
}

var ctx = context.Background()

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

func TestIsLeapYear(t *testing.T) {
	assert.True(t, asset.IsLeapYear(2024))
	assert.True(t, asset.IsLeapYear(2000))
	assert.True(t, asset.IsLeapYear(1600))
	assert.False(t, asset.IsLeapYear(2023))
	assert.False(t, asset.IsLeapYear(1900))
	assert.False(t, asset.IsLeapYear(2100))
}

func TestLastDayOf_February(t *testing.T) {
	for year := 1890; year <= 2110; year++ {
		want := 28
		if asset.IsLeapYear(year) {
			want = 29
		}
		assert.Equal(t, want, asset.LastDayOf(time.February, year), "year %d", year)
	}
}

func TestLastDayOf_MatchesTimePackage(t *testing.T) {
	for month := time.January; month <= time.December; month++ {
		for _, year := range []int{2023, 2024} {
			want := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
			assert.Equal(t, want, asset.LastDayOf(month, year), "%s %d", month, year)
		}
	}
}

// =============================================================================
// RESOLVE
// =============================================================================

func TestResolve_SingleDateEveryYear(t *testing.T) {
	r := asset.NewResolver(nil)
	for month := time.January; month <= time.December; month++ {
		for _, day := range []int{1, 15, 28} {
			filename := fmt.Sprintf("%02d-%02d-[Day].png", day, int(month))
			id := mustParse(t, filename)
			for _, year := range []int{1999, 2000, 2023, 2024, 2100} {
				rng, err := r.Resolve(ctx, id, year)
				require.NoError(t, err)
				assert.Equal(t, date(year, month, day), rng.Start, filename)
				assert.Equal(t, rng.Start, rng.End, filename)
			}
		}
	}
}

func TestResolve_SingleMonth(t *testing.T) {
	r := asset.NewResolver(nil)

	rng, err := r.Resolve(ctx, mustParse(t, "x-02-[February].gif"), 2024)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 1), rng.Start)
	assert.Equal(t, date(2024, time.February, 29), rng.End)

	rng, err = r.Resolve(ctx, mustParse(t, "x-02-[February].gif"), 2023)
	require.NoError(t, err)
	assert.Equal(t, date(2023, time.February, 28), rng.End)
}

func TestResolve_MonthSpan(t *testing.T) {
	r := asset.NewResolver(nil)
	for m1 := time.January; m1 <= time.December; m1++ {
		for m2 := m1; m2 <= time.December; m2++ {
			id := mustParse(t, fmt.Sprintf("x-%02d-x-%02d-[Span].png", int(m1), int(m2)))
			for _, year := range []int{1900, 2000, 2023, 2024} {
				rng, err := r.Resolve(ctx, id, year)
				require.NoError(t, err)
				assert.Equal(t, date(year, m1, 1), rng.Start)
				assert.Equal(t, date(year, m2, asset.LastDayOf(m2, year)), rng.End)
			}
		}
	}
}

func TestResolve_JanuaryExample(t *testing.T) {
	r := asset.NewResolver(nil)
	id := mustParse(t, "01-01-31-01-[The Month of January].png")

	rng, err := r.Resolve(ctx, id, 2024)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 1), rng.Start)
	assert.Equal(t, date(2024, time.January, 31), rng.End)

	in, err := r.Contains(ctx, id, date(2024, time.January, 15), 2024)
	require.NoError(t, err)
	assert.True(t, in)

	in, err = r.Contains(ctx, id, date(2024, time.February, 1), 2024)
	require.NoError(t, err)
	assert.False(t, in)
}

func TestResolve_UnboundedStart(t *testing.T) {
	r := asset.NewResolver(nil)
	id := mustParse(t, "x-01-25-01-[Partial].png")
	assert.Equal(t, asset.Unbounded, id.StartDay)

	rng, err := r.Resolve(ctx, id, 2023)
	require.NoError(t, err)
	assert.Equal(t, date(2023, time.January, 1), rng.Start)
	assert.Equal(t, date(2023, time.January, 25), rng.End)
}

func TestResolve_UnboundedEndHonoursLeapYear(t *testing.T) {
	r := asset.NewResolver(nil)
	id := mustParse(t, "14-02-x-02-[Late February].png")

	rng, err := r.Resolve(ctx, id, 2024)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), rng.End)

	rng, err = r.Resolve(ctx, id, 2100)
	require.NoError(t, err)
	assert.Equal(t, date(2100, time.February, 28), rng.End)
}

func TestResolve_YearWrapUnsupported(t *testing.T) {
	r := asset.NewResolver(nil)
	for _, filename := range []string{
		"x-11-x-02-[Winter].png",
		"20-12-05-01-[Holidays].png",
		"20-01-10-01-[Backwards].png",
	} {
		t.Run(filename, func(t *testing.T) {
			_, err := r.Resolve(ctx, mustParse(t, filename), 2024)
			assert.ErrorIs(t, err, asset.ErrUnsupportedYearWrap)

			var rerr *asset.ResolveError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, 2024, rerr.Year)
		})
	}
}

func TestResolve_LeapDayOutsideLeapYear(t *testing.T) {
	r := asset.NewResolver(nil)
	id := mustParse(t, "29-02-[Leap Day].png")

	rng, err := r.Resolve(ctx, id, 2024)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), rng.Start)

	_, err = r.Resolve(ctx, id, 2023)
	assert.ErrorIs(t, err, asset.ErrNonexistentDate)
}

// =============================================================================
// SPECIAL CASES
// =============================================================================

func TestResolve_UnknownSpecialCase(t *testing.T) {
	id := mustParse(t, "special_ZZ-[Unknown].png")

	for name, r := range map[string]*asset.Resolver{
		"nil registry":   asset.NewResolver(nil),
		"empty registry": asset.NewResolver(mapRegistry{}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(ctx, id, 2024)
			assert.ErrorIs(t, err, asset.ErrUnknownSpecialCase)

			var rerr *asset.ResolveError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, "ZZ", rerr.ID.SpecialID)
			assert.Contains(t, err.Error(), `"ZZ"`)
		})
	}
}

func TestResolve_SpecialCaseDelegates(t *testing.T) {
	var gotYear int
	reg := mapRegistry{
		"EA": resolverFunc(func(_ context.Context, year int) (time.Time, time.Time, error) {
			gotYear = year
			return time.Date(year, time.March, 28, 13, 30, 0, 0, time.FixedZone("X", 3600)),
				date(year, time.April, 1), nil
		}),
	}
	r := asset.NewResolver(reg)

	rng, err := r.Resolve(ctx, mustParse(t, "special_EA-[Easter].gif"), 2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, gotYear)
	assert.Equal(t, date(2024, time.March, 28), rng.Start)
	assert.Equal(t, date(2024, time.April, 1), rng.End)
}

func TestResolve_SpecialCaseFailureKeepsCause(t *testing.T) {
	calls := 0
	reg := mapRegistry{
		"EA": resolverFunc(func(context.Context, int) (time.Time, time.Time, error) {
			calls++
			return time.Time{}, time.Time{}, context.DeadlineExceeded
		}),
	}
	r := asset.NewResolver(reg)

	_, err := r.Resolve(ctx, mustParse(t, "special_EA-[Easter].gif"), 2024)
	require.Error(t, err)
	assert.ErrorIs(t, err, asset.ErrSpecialCaseFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls, "resolver must not retry")

	var rerr *asset.ResolveError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, errors.Is(rerr.Cause, context.DeadlineExceeded))
}

// =============================================================================
// CONTAINS
// =============================================================================

func TestContains_EndpointsInclusive(t *testing.T) {
	r := asset.NewResolver(nil)
	for _, filename := range []string{
		"01-04-[April Fools].gif",
		"01-12-23-12-[Advent].gif",
		"x-02-[February].gif",
		"x-06-x-07-[Summer].png",
		"x-01-25-01-[Partial].png",
		"15-12-x-12-[Late December].png",
	} {
		id := mustParse(t, filename)
		for _, year := range []int{2023, 2024} {
			rng, err := r.Resolve(ctx, id, year)
			require.NoError(t, err)

			for _, d := range []time.Time{rng.Start, rng.End} {
				in, err := r.Contains(ctx, id, d, year)
				require.NoError(t, err)
				assert.True(t, in, "%s %d: %s", filename, year, d)
			}
			for _, d := range []time.Time{rng.Start.AddDate(0, 0, -1), rng.End.AddDate(0, 0, 1)} {
				in, err := r.Contains(ctx, id, d, year)
				require.NoError(t, err)
				assert.False(t, in, "%s %d: %s", filename, year, d)
			}
		}
	}
}

func TestContains_IgnoresTimeOfDay(t *testing.T) {
	r := asset.NewResolver(nil)
	id := mustParse(t, "01-04-[April Fools].gif")

	in, err := r.Contains(ctx, id, time.Date(2024, time.April, 1, 23, 59, 59, 0, time.UTC), 2024)
	require.NoError(t, err)
	assert.True(t, in)
}

func TestContains_PropagatesResolveError(t *testing.T) {
	r := asset.NewResolver(nil)

	in, err := r.Contains(ctx, mustParse(t, "x-11-x-02-[Winter].png"), date(2024, time.December, 1), 2024)
	assert.False(t, in)
	assert.ErrorIs(t, err, asset.ErrUnsupportedYearWrap)
}

func TestRange_Days(t *testing.T) {
	rng := asset.Range{Start: date(2024, time.February, 27), End: date(2024, time.March, 1)}
	days := rng.Days()
	require.Len(t, days, 4)
	assert.Equal(t, date(2024, time.February, 29), days[2])
	assert.Equal(t, "[2024-02-27, 2024-03-01]", rng.String())
}
