package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the change request service metrics.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	Conflicts          *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	ConflictCandidates prometheus.Histogram
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mppchs_change_request_transitions_total",
			Help: "Change request lifecycle transitions by operation and outcome",
		}, []string{"operation", "outcome"}),
		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mppchs_identifier_conflicts_total",
			Help: "Sensitive identifier collisions by field and source",
		}, []string{"field", "source"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mppchs_list_cache_lookups_total",
			Help: "List cache lookups by result",
		}, []string{"result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mppchs_change_request_operation_duration_seconds",
			Help:    "Latency of change request operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		ConflictCandidates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mppchs_conflict_shortlist_size",
			Help:    "Rows decrypted per shortlist lookup",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		}),
	}
}

// ObserveTransition records one operation outcome and its latency.
func (m *Metrics) ObserveTransition(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Transitions.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncrementConflict records a collision on field from source ("live" or "pending").
func (m *Metrics) IncrementConflict(field, source string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(field, source).Inc()
}

// ObserveShortlist records how many candidates one shortlist query returned.
func (m *Metrics) ObserveShortlist(n int) {
	if m == nil {
		return
	}
	m.ConflictCandidates.Observe(float64(n))
}

// IncrementCacheLookup records a cache hit or miss.
func (m *Metrics) IncrementCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
