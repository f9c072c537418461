package availability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"studio/backend/internal/store"
)

// Metrics exposes Prometheus collectors for availability planning.
type Metrics struct {
	planDuration   *prometheus.HistogramVec
	conflicts      *prometheus.CounterVec
	skippedRecords *prometheus.CounterVec
	suggestions    prometheus.Histogram
}

// MustNewMetrics registers the collectors with reg. Collectors already present
// on reg are reused, so constructing twice against one registry is safe.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		planDuration: registerOrReuse(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "studio",
				Subsystem: "availability",
				Name:      "plan_duration_seconds",
				Help:      "Time spent planning availability checks and reservations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		)),
		conflicts: registerOrReuse(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studio",
				Subsystem: "availability",
				Name:      "conflicts_total",
				Help:      "Number of weeks reported as conflicting.",
			},
			[]string{"operation"},
		)),
		skippedRecords: registerOrReuse(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studio",
				Subsystem: "availability",
				Name:      "skipped_records_total",
				Help:      "Booking rows dropped from busy sets because their times could not be parsed.",
			},
			[]string{"source"},
		)),
		suggestions: registerOrReuse(reg, prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "studio",
				Subsystem: "availability",
				Name:      "suggestions",
				Help:      "Number of alternative times offered for a conflicting week.",
				Buckets:   []float64{0, 1, 2, 4, 8, 16, 34},
			},
		)),
	}
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObservePlan records how long an operation took and how it ended.
func (m *Metrics) ObservePlan(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.planDuration.WithLabelValues(operation, planStatus(err)).Observe(d.Seconds())
}

func (m *Metrics) ObserveResults(operation string, results []ConflictResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		if !r.Conflict {
			continue
		}
		m.conflicts.WithLabelValues(operation).Inc()
		m.suggestions.Observe(float64(len(r.SuggestedTimes)))
	}
}

func (m *Metrics) IncSkipped(source string) {
	if m == nil {
		return
	}
	m.skippedRecords.WithLabelValues(source).Inc()
}

func planStatus(err error) string {
	var vErr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
