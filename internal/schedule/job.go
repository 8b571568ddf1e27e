// Package schedule picks the icon for today and hands it to an Applier,
// once per cron tick.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"iconcal/internal/asset"
	"iconcal/internal/catalog"
	"iconcal/internal/config"
	appLog "iconcal/internal/log"
	"iconcal/internal/metrics"
	"iconcal/internal/model"
)

// Builder produces the validated asset calendar for a year.
type Builder interface {
	Build(ctx context.Context, year int) (*catalog.Report, error)
}

// Applier publishes the chosen icon, e.g. to a bot or a file.
type Applier interface {
	Apply(ctx context.Context, icon model.Icon) error
}

// Job selects today's icon. It rebuilds the calendar when the year
// changes or when a special case failed in the last build, and only calls
// the Applier when the icon differs from the last one applied.
type Job struct {
	Catalog     Builder
	Applier     Applier
	Location    *time.Location
	DefaultIcon string
	Metrics     *metrics.Metrics

	// Now defaults to time.Now.
	Now func() time.Time

	mu       sync.Mutex
	year     int
	calendar *catalog.Calendar
	retry    bool
	current  model.Icon
}

// Run performs one selection. Validation failures in the calendar are
// logged but do not stop the job; the default icon covers any gap.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	today := j.today()
	if j.calendar == nil || j.retry || today.Year() != j.year {
		report, err := j.Catalog.Build(ctx, today.Year())
		if err != nil {
			return fmt.Errorf("schedule: build %d: %w", today.Year(), err)
		}
		j.retry = false
		for _, f := range report.Failures {
			appLog.Warn("asset skipped", "file", f.File, "err", f.Err)
			// Resolver failures (feed down, timeout) may clear up by the next tick.
			if errors.Is(f.Err, asset.ErrSpecialCaseFailed) {
				j.retry = true
			}
		}
		j.year = today.Year()
		j.calendar = report.Calendar
	}

	icon := model.Icon{Name: "default", Path: j.DefaultIcon, Default: true}
	if e, ok := j.calendar.Lookup(today); ok {
		icon = model.IconFor(e)
	}

	if icon.Path == j.current.Path {
		appLog.Debug("icon unchanged", "name", icon.Name, "date", today.Format(time.DateOnly))
		return nil
	}

	if err := j.Applier.Apply(ctx, icon); err != nil {
		return fmt.Errorf("schedule: apply %s: %w", icon.Name, err)
	}
	j.current = icon
	j.Metrics.IncIconChanges()
	appLog.Info("icon changed", "name", icon.Name, "path", icon.Path, "default", icon.Default, "date", today.Format(time.DateOnly))
	return nil
}

// Current returns the last applied icon.
func (j *Job) Current() model.Icon {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current
}

func (j *Job) today() time.Time {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	loc := j.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

// LogApplier only logs the icon. Useful with --once and for dry runs.
type LogApplier struct{}

func (LogApplier) Apply(_ context.Context, icon model.Icon) error {
	appLog.Info("apply icon", "name", icon.Name, "path", icon.Path, "default", icon.Default)
	return nil
}

// FileApplier copies the icon to Dest so an external bot can pick it up.
type FileApplier struct {
	Dest string
}

func (a FileApplier) Apply(ctx context.Context, icon model.Icon) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(icon.Path)
	if err != nil {
		return err
	}
	if err := config.WriteFileAtomic(a.Dest, data, 0o644); err != nil {
		return err
	}
	appLog.Info("icon written", "name", icon.Name, "dest", a.Dest, "bytes", len(data))
	return nil
}
