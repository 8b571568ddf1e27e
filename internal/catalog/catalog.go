// Package catalog validates a directory of date-coded assets as a batch.
//
// Every file is parsed and resolved for a year; failures are collected per
// file instead of stopping the run, and assets whose active ranges share a
// day are reported as overlaps. The result doubles as a day-indexed
// calendar used to pick the icon for a date.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"iconcal/internal/asset"
	appLog "iconcal/internal/log"
	"iconcal/internal/metrics"
	"iconcal/internal/model"
)

// ErrOverlap is returned when two assets are active on the same day.
var ErrOverlap = errors.New("overlapping active ranges")

// OverlapError names the first shared day of two assets.
type OverlapError struct {
	Date   time.Time
	First  string
	Second string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s overlaps %s on %s", filepath.Base(e.Second), filepath.Base(e.First), e.Date.Format(time.DateOnly))
}

func (e *OverlapError) Unwrap() error {
	return ErrOverlap
}

// Failure is a per-file validation error.
type Failure struct {
	File string
	Err  error
}

func (f Failure) Error() string {
	return filepath.Base(f.File) + ": " + f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Options configures a Catalog.
type Options struct {
	Dir     string
	Ignored []string

	// ResolveTimeout bounds each resolution; zero means no timeout.
	ResolveTimeout time.Duration

	// MaxConcurrency bounds parallel resolutions; zero means 1.
	MaxConcurrency int

	Metrics *metrics.Metrics
}

// Catalog builds reports for the assets in one directory.
type Catalog struct {
	resolver *asset.Resolver
	opts     Options
}

func New(resolver *asset.Resolver, opts Options) *Catalog {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	return &Catalog{resolver: resolver, opts: opts}
}

// File is one candidate asset found by Scan.
type File struct {
	Path string
	Name string
}

// Scan lists the regular files of dir, sorted by name, minus ignored names.
func Scan(dir string, ignored []string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", dir, err)
	}
	skip := make(map[string]bool, len(ignored))
	for _, name := range ignored {
		skip[name] = true
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || skip[entry.Name()] || !entry.Type().IsRegular() {
			continue
		}
		files = append(files, File{Path: filepath.Join(dir, entry.Name()), Name: entry.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

type parsed struct {
	file string
	id   asset.Identifier
}

type resolved struct {
	rng asset.Range
	err error
}

// Build validates every asset for year. The returned error is only non-nil
// when the directory cannot be read or ctx is cancelled; asset problems
// are listed in Report.Failures.
func (c *Catalog) Build(ctx context.Context, year int) (*Report, error) {
	files, err := Scan(c.opts.Dir, c.opts.Ignored)
	if err != nil {
		return nil, err
	}

	report := &Report{Year: year}

	var ids []parsed
	for _, file := range files {
		appLog.Debug("parsing asset", "file", file.Name)
		id, err := asset.Parse(file.Name)
		if err != nil {
			report.fail(file.Path, err, c.opts.Metrics)
			continue
		}
		ids = append(ids, parsed{file: file.Path, id: id})
	}

	results := c.resolveAll(ctx, ids, year)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, p := range ids {
		res := results[i]
		if res.err != nil {
			report.fail(p.file, res.err, c.opts.Metrics)
			continue
		}
		if res.rng.Start.After(res.rng.End) {
			report.fail(p.file, &asset.ResolveError{
				ID:    p.id,
				Year:  year,
				Err:   asset.ErrEmptyRange,
				Cause: fmt.Errorf("resolver returned %s", res.rng),
			}, c.opts.Metrics)
			continue
		}
		report.Entries = append(report.Entries, model.Entry{
			File:  p.file,
			Name:  p.id.Label,
			ID:    p.id,
			Year:  year,
			Range: res.rng,
		})
	}

	report.Calendar = report.index(c.opts.Metrics)
	sort.SliceStable(report.Failures, func(i, j int) bool { return report.Failures[i].File < report.Failures[j].File })
	c.opts.Metrics.SetAssetsValid(len(report.Entries))

	appLog.Info("asset calendar built",
		"dir", c.opts.Dir,
		"year", year,
		"valid", len(report.Entries),
		"failures", len(report.Failures),
	)
	return report, nil
}

// resolveAll resolves ids concurrently. Each call gets its own timeout and
// errors stay per asset, so one slow special case cannot fail the batch.
func (c *Catalog) resolveAll(ctx context.Context, ids []parsed, year int) []resolved {
	results := make([]resolved, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxConcurrency)

	for i, p := range ids {
		g.Go(func() error {
			callCtx := gctx
			if c.opts.ResolveTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, c.opts.ResolveTimeout)
				defer cancel()
			}

			start := time.Now()
			rng, err := c.resolver.Resolve(callCtx, p.id, year)
			if p.id.Kind == asset.KindSpecialCase {
				c.opts.Metrics.ObserveSpecialCase(p.id.SpecialID, time.Since(start))
			}
			results[i] = resolved{rng: rng, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Report is the outcome of one Build.
type Report struct {
	Year     int
	Entries  []model.Entry
	Failures []Failure
	Calendar *Calendar
}

// Calendar maps each covered day to the asset active on it.
type Calendar struct {
	days map[time.Time]model.Entry
}

// Lookup returns the entry active on the calendar date of t.
func (c *Calendar) Lookup(t time.Time) (model.Entry, bool) {
	if c == nil {
		return model.Entry{}, false
	}
	e, ok := c.days[asset.DateOf(t)]
	return e, ok
}

// Len is the number of covered days.
func (c *Calendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.days)
}

// OK reports whether every asset is valid and no ranges overlap.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Errors returns the failures as errors, for errors.Join and friends.
func (r *Report) Errors() []error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errs
}

func (r *Report) fail(file string, err error, m *metrics.Metrics) {
	appLog.Debug("asset rejected", "file", filepath.Base(file), "err", err)
	r.Failures = append(r.Failures, Failure{File: file, Err: err})
	m.ObserveFailure(err, errors.Is(err, ErrOverlap))
}

// index lays entries into the day map in start order. An entry sharing a
// day with one already placed is reported once per conflicting entry and
// left out of both Entries and the calendar.
func (r *Report) index(m *metrics.Metrics) *Calendar {
	sort.SliceStable(r.Entries, func(i, j int) bool {
		a, b := r.Entries[i], r.Entries[j]
		if !a.Range.Start.Equal(b.Range.Start) {
			return a.Range.Start.Before(b.Range.Start)
		}
		return a.File < b.File
	})

	days := make(map[time.Time]model.Entry)
	placed := r.Entries[:0]
	for _, e := range r.Entries {
		span := e.Range.Days()

		reported := make(map[string]bool)
		for _, day := range span {
			existing, taken := days[day]
			if !taken || reported[existing.File] {
				continue
			}
			reported[existing.File] = true
			r.fail(e.File, &OverlapError{Date: day, First: existing.File, Second: e.File}, m)
		}
		if len(reported) > 0 {
			continue
		}

		for _, day := range span {
			days[day] = e
		}
		placed = append(placed, e)
	}
	r.Entries = placed
	return &Calendar{days: days}
}
