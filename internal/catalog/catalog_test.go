package catalog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconcal/internal/asset"
	"iconcal/internal/catalog"
	"iconcal/internal/metrics"
	"iconcal/internal/special"
)

type resolverFunc func(ctx context.Context, year int) (time.Time, time.Time, error)

func (f resolverFunc) Resolve(ctx context.Context, year int) (time.Time, time.Time, error) {
	return f(ctx, year)
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("GIF89a"), 0o600))
	}
}

func newCatalog(t *testing.T, dir string, reg *special.Registry, m *metrics.Metrics) *catalog.Catalog {
	t.Helper()
	if reg == nil {
		var err error
		reg, err = special.Discover(filepath.Join(dir, "special_cases"), special.Deps{})
		require.NoError(t, err)
	}
	return catalog.New(asset.NewResolver(reg), catalog.Options{
		Dir:            dir,
		Ignored:        []string{"DEFAULT.gif", "README.md"},
		ResolveTimeout: time.Second,
		MaxConcurrency: 2,
		Metrics:        m,
	})
}

func metricValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var out dto.Metric
	require.NoError(t, (<-ch).Write(&out))
	if out.Gauge != nil {
		return out.GetGauge().GetValue()
	}
	return out.GetCounter().GetValue()
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "DEFAULT.gif", "README.md", "01-04-[April Fools].gif", "01-01-31-01-[January].png")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "special_cases"), 0o700))

	files, err := catalog.Scan(dir, []string{"DEFAULT.gif", "README.md"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "01-01-31-01-[January].png", files[0].Name)
	assert.Equal(t, filepath.Join(dir, "01-04-[April Fools].gif"), files[1].Path)
}

func TestScan_MissingDir(t *testing.T) {
	_, err := catalog.Scan(filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestBuild_CollectsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"DEFAULT.gif",
		"README.md",
		"01-01-31-01-[The Month of January].png",
		"01-04-[April Fools].gif",
		"special_EA-[Easter].gif",
		"13-25-[Bad].png",
		"x-11-x-02-[Winter].png",
		"special_ZZ-[Unknown].png",
		"01-06-[No Extension]",
	)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	report, err := newCatalog(t, dir, nil, m).Build(context.Background(), 2025)
	require.NoError(t, err)

	assert.False(t, report.OK())
	assert.Len(t, report.Entries, 3)
	require.Len(t, report.Failures, 4)

	byName := map[string]error{}
	for _, f := range report.Failures {
		byName[filepath.Base(f.File)] = f.Err
	}
	assert.ErrorIs(t, byName["13-25-[Bad].png"], asset.ErrMalformedIdentifier)
	assert.ErrorIs(t, byName["x-11-x-02-[Winter].png"], asset.ErrUnsupportedYearWrap)
	assert.ErrorIs(t, byName["special_ZZ-[Unknown].png"], asset.ErrUnknownSpecialCase)
	assert.ErrorIs(t, byName["01-06-[No Extension]"], asset.ErrBadFormat)

	assert.Equal(t, float64(3), metricValue(t, m.AssetsValid))
	assert.Equal(t, float64(1), metricValue(t, m.ValidationFailures.WithLabelValues("malformed")))
}

func TestBuild_CalendarLookup(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"01-01-31-01-[The Month of January].png",
		"01-04-[April Fools].gif",
		"special_EA-[Easter].gif",
	)

	report, err := newCatalog(t, dir, nil, nil).Build(context.Background(), 2025)
	require.NoError(t, err)
	require.True(t, report.OK(), "failures: %v", report.Failures)

	e, ok := report.Calendar.Lookup(asset.Date(2025, time.January, 15))
	require.True(t, ok)
	assert.Equal(t, "The Month of January", e.Name)

	e, ok = report.Calendar.Lookup(time.Date(2025, time.April, 20, 18, 30, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "Easter", e.Name)
	assert.Equal(t, asset.Date(2025, time.April, 17), e.Range.Start)
	assert.Equal(t, asset.Date(2025, time.April, 21), e.Range.End)

	_, ok = report.Calendar.Lookup(asset.Date(2025, time.February, 1))
	assert.False(t, ok)

	assert.Equal(t, 31+1+5, report.Calendar.Len())
}

func TestBuild_OverlapReportedOncePerPair(t *testing.T) {
	dir := t.TempDir()
	// Easter 2024 is March 31, so the built-in window ends on April 1.
	touch(t, dir, "01-04-[April Fools].gif", "special_EA-[Easter].gif", "25-03-05-04-[Spring].png")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	report, err := newCatalog(t, dir, nil, m).Build(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, report.Failures, 2)

	for _, f := range report.Failures {
		var overlap *catalog.OverlapError
		require.ErrorAs(t, f.Err, &overlap)
		assert.ErrorIs(t, f.Err, catalog.ErrOverlap)
		assert.Equal(t, filepath.Base(f.File), filepath.Base(overlap.Second))
	}

	// Spring starts first and keeps its days; the others are not active.
	e, ok := report.Calendar.Lookup(asset.Date(2024, time.April, 1))
	require.True(t, ok)
	assert.Equal(t, "Spring", e.Name)

	require.Len(t, report.Entries, 1)
	assert.Equal(t, "Spring", report.Entries[0].Name)
	assert.Equal(t, 3, len(report.Entries)+len(report.Failures), "every file is either valid or failed")
	assert.Equal(t, float64(1), metricValue(t, m.AssetsValid))
	assert.Equal(t, float64(2), metricValue(t, m.ValidationFailures.WithLabelValues("overlap")))
}

func TestBuild_OverlapLoserKeepsNoDays(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "01-01-31-01-[January].png", "31-01-05-02-[Late January].png")

	report, err := newCatalog(t, dir, nil, nil).Build(context.Background(), 2025)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	require.Len(t, report.Entries, 1)

	_, ok := report.Calendar.Lookup(asset.Date(2025, time.February, 3))
	assert.False(t, ok, "days outside the overlap are not claimed by the rejected asset")
	assert.Equal(t, 31, report.Calendar.Len())
}

func TestBuild_InvertedSpecialCaseRangeFails(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "special_IV-[Inverted].gif", "01-05-[May Day].gif")

	reg := special.NewRegistry()
	require.NoError(t, reg.Register("IV", "test", resolverFunc(func(_ context.Context, year int) (time.Time, time.Time, error) {
		return asset.Date(year, time.April, 10), asset.Date(year, time.April, 1), nil
	})))

	m := metrics.New(prometheus.NewRegistry())
	report, err := newCatalog(t, dir, reg, m).Build(context.Background(), 2024)
	require.NoError(t, err)

	assert.False(t, report.OK())
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "special_IV-[Inverted].gif", filepath.Base(report.Failures[0].File))
	assert.ErrorIs(t, report.Failures[0].Err, asset.ErrEmptyRange)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "May Day", report.Entries[0].Name)
	assert.Equal(t, float64(1), metricValue(t, m.ValidationFailures.WithLabelValues("empty_range")))
}

func TestBuild_SpecialCaseTimeout(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "special_SL-[Slow].gif", "01-05-[May Day].gif")

	reg := special.NewRegistry()
	require.NoError(t, reg.Register("SL", "test", resolverFunc(func(ctx context.Context, _ int) (time.Time, time.Time, error) {
		<-ctx.Done()
		return time.Time{}, time.Time{}, ctx.Err()
	})))

	c := catalog.New(asset.NewResolver(reg), catalog.Options{
		Dir:            dir,
		ResolveTimeout: 20 * time.Millisecond,
		MaxConcurrency: 4,
	})
	report, err := c.Build(context.Background(), 2025)
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, asset.ErrSpecialCaseFailed)
	assert.ErrorIs(t, report.Failures[0].Err, context.DeadlineExceeded)
	assert.Len(t, report.Entries, 1)
}

func TestBuild_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "01-05-[May Day].gif")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCatalog(t, dir, nil, nil).Build(ctx, 2025)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReport_Errors(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "13-25-[Bad].png")

	report, err := newCatalog(t, dir, nil, nil).Build(context.Background(), 2025)
	require.NoError(t, err)

	joined := errors.Join(report.Errors()...)
	assert.ErrorIs(t, joined, asset.ErrMalformedIdentifier)
	assert.Contains(t, joined.Error(), "13-25-[Bad].png")
}
