package autopost

import (
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by cycles.
type Metrics struct {
	outcomes       *prometheus.CounterVec
	captions       *prometheus.CounterVec
	ledgerFailures prometheus.Counter
	cycleDuration  *prometheus.HistogramVec
	breakerState   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "publish_outcomes_total",
			Help:      "Publish attempts by outcome status",
		}, []string{"status"}),
		captions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "captions_total",
			Help:      "Generated captions by source",
		}, []string{"source"}),
		ledgerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autopost",
			Name:      "ledger_write_failures_total",
			Help:      "Ledger writes that aborted a cycle",
		}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autopost",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of publish cycles",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"result"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autopost",
			Name:      "caption_breaker_open",
			Help:      "1 while the caption circuit breaker is open, 0.5 half-open, 0 closed",
		}),
	}
	reg.MustRegister(m.outcomes, m.captions, m.ledgerFailures, m.cycleDuration, m.breakerState)
	return m
}

func (m *Metrics) setBreakerState(state circuitbreaker.State) {
	switch state {
	case circuitbreaker.OpenState:
		m.breakerState.Set(1)
	case circuitbreaker.HalfOpenState:
		m.breakerState.Set(0.5)
	default:
		m.breakerState.Set(0)
	}
}
