package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"iconcal/internal/asset"
)

// Metrics holds the Prometheus collectors for validation and scheduling.
type Metrics struct {
	AssetsValid        prometheus.Gauge
	ValidationFailures *prometheus.CounterVec
	SpecialCaseLatency *prometheus.HistogramVec
	IconChanges        prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AssetsValid: f.NewGauge(prometheus.GaugeOpts{
			Name: "iconcal_assets_valid",
			Help: "Number of assets that parsed and resolved in the last build",
		}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "iconcal_validation_failures_total",
			Help: "Asset validation failures by reason",
		}, []string{"reason"}),
		SpecialCaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iconcal_special_case_duration_seconds",
			Help:    "Time spent resolving special-case assets",
			Buckets: prometheus.DefBuckets,
		}, []string{"id"}),
		IconChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "iconcal_icon_changes_total",
			Help: "Number of times a new icon was applied",
		}),
	}
}

// ObserveFailure counts a validation failure under a reason derived from err.
func (m *Metrics) ObserveFailure(err error, overlap bool) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(Reason(err, overlap)).Inc()
}

// ObserveSpecialCase records how long a special-case resolution took.
func (m *Metrics) ObserveSpecialCase(id string, d time.Duration) {
	if m == nil {
		return
	}
	m.SpecialCaseLatency.WithLabelValues(id).Observe(d.Seconds())
}

func (m *Metrics) SetAssetsValid(n int) {
	if m == nil {
		return
	}
	m.AssetsValid.Set(float64(n))
}

func (m *Metrics) IncIconChanges() {
	if m == nil {
		return
	}
	m.IconChanges.Inc()
}

// Reason maps an error to a low-cardinality label value.
func Reason(err error, overlap bool) string {
	switch {
	case overlap:
		return "overlap"
	case errors.Is(err, asset.ErrBadFormat):
		return "bad_format"
	case errors.Is(err, asset.ErrMalformedIdentifier):
		return "malformed"
	case errors.Is(err, asset.ErrUnsupportedYearWrap):
		return "year_wrap"
	case errors.Is(err, asset.ErrNonexistentDate):
		return "nonexistent_date"
	case errors.Is(err, asset.ErrUnknownSpecialCase):
		return "unknown_special_case"
	case errors.Is(err, asset.ErrSpecialCaseFailed):
		return "special_case_failed"
	case errors.Is(err, asset.ErrEmptyRange):
		return "empty_range"
	default:
		return "other"
	}
}
