// Package metrics holds the prometheus instrumentation for dispatch and consensus.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relayclient"

// Dispatch attempt outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTransport = "transport"
	OutcomeDecode    = "decode"
)

// Metrics groups the library's collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Dispatch attempts partitioned by outcome.
	DispatchAttempts *prometheus.CounterVec

	// Endpoints remaining in the dispatcher pool.
	PoolEndpoints prometheus.Gauge

	// Sessions written to the session cache.
	SessionsSaved prometheus.Counter

	// Consensus validations partitioned by result.
	ConsensusValidations *prometheus.CounterVec

	// Requests served by the reference dispatcher, partitioned by status.
	DispatcherRequests *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// A nil reg leaves them unregistered, which is useful in tests.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		DispatchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_attempts_total",
				Help:      "Dispatch calls made, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		PoolEndpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_pool_endpoints",
			Help:      "Dispatcher endpoints remaining in the pool.",
		}),
		SessionsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_saved_total",
			Help:      "Sessions saved to the session cache.",
		}),
		ConsensusValidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consensus_validations_total",
				Help:      "Consensus validations run, partitioned by result.",
			},
			[]string{"result"},
		),
		DispatcherRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_requests_total",
				Help:      "Dispatch requests served, partitioned by response status.",
			},
			[]string{"status"},
		),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.DispatchAttempts,
		m.PoolEndpoints,
		m.SessionsSaved,
		m.ConsensusValidations,
		m.DispatcherRequests,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector:\n%w", err)
		}
	}

	return m, nil
}

// ObserveDispatch counts one dispatch attempt.
func (m *Metrics) ObserveDispatch(outcome string) {
	if m == nil {
		return
	}

	m.DispatchAttempts.WithLabelValues(outcome).Inc()
}

// SetPoolEndpoints records the pool size.
func (m *Metrics) SetPoolEndpoints(n int) {
	if m == nil {
		return
	}

	m.PoolEndpoints.Set(float64(n))
}

// SessionSaved counts one cache save.
func (m *Metrics) SessionSaved() {
	if m == nil {
		return
	}

	m.SessionsSaved.Inc()
}

// ObserveConsensus counts one validation.
func (m *Metrics) ObserveConsensus(agreed bool) {
	if m == nil {
		return
	}

	result := "disagreed"
	if agreed {
		result = "agreed"
	}

	m.ConsensusValidations.WithLabelValues(result).Inc()
}

// ObserveDispatcherRequest counts one request served by the dispatcher.
func (m *Metrics) ObserveDispatcherRequest(status string) {
	if m == nil {
		return
	}

	m.DispatcherRequests.WithLabelValues(status).Inc()
}

// Handler exposes the metrics gathered by g in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
