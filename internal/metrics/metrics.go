// Package metrics exposes prometheus collectors for operations and
// enforcement passes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eliteGoblin/focusd/access_mon/internal/domain"
	"github.com/eliteGoblin/focusd/access_mon/internal/usecase"
)

const namespace = "accessmon"

// Recorder implements usecase.Recorder on top of prometheus collectors.
type Recorder struct {
	operationsTotal   *prometheus.CounterVec
	passesTotal       *prometheus.CounterVec
	actuationsTotal   *prometheus.CounterVec
	actuationDuration *prometheus.HistogramVec
}

// NewRecorder registers the collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "operations_total",
				Help:      "Operations executed, by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enforcer",
				Name:      "passes_total",
				Help:      "Enforcement passes, by account kind and result.",
			},
			[]string{"account_kind", "result"},
		),
		actuationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enforcer",
				Name:      "actuations_total",
				Help:      "OS state changes applied, by account kind and action.",
			},
			[]string{"account_kind", "action"},
		),
		actuationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "enforcer",
				Name:      "actuation_duration_seconds",
				Help:      "Time spent changing the OS state.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"account_kind"},
		),
	}
}

func (r *Recorder) OperationExecuted(kind string, outcome domain.Outcome) {
	r.operationsTotal.WithLabelValues(kind, string(outcome)).Inc()
}

func (r *Recorder) EnforcementPassed(ref domain.AccountRef, result *domain.EnforcementResult, err error) {
	kind := string(ref.Kind)
	if err != nil {
		r.passesTotal.WithLabelValues(kind, "error").Inc()
		return
	}
	r.passesTotal.WithLabelValues(kind, "ok").Inc()
	if result != nil && result.Actuated {
		r.actuationsTotal.WithLabelValues(kind, string(result.Action)).Inc()
		r.actuationDuration.WithLabelValues(kind).Observe(float64(result.DurationMs) / 1000)
	}
}

// Ensure Recorder implements usecase.Recorder.
var _ usecase.Recorder = (*Recorder)(nil)
