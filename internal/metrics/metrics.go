// Package metrics holds the prometheus collectors of the contract host.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "contract_host"

// Call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeTrap        = "trap"
	OutcomeTimeout     = "timeout"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	calls           *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	resultSize      *prometheus.HistogramVec
	instances       *prometheus.GaugeVec
	instanceEvents  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	contractsLoaded prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of contract calls",
			},
			[]string{"contract", "outcome"},
		),
		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Time taken to run one contract call",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"contract"},
		),
		resultSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "result_size_bytes",
				Help:      "Size in bytes of the state returned by a contract",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
			},
			[]string{"contract"},
		),
		instances: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "instances",
				Help:      "Live contract instances",
			},
			[]string{"contract"},
		),
		instanceEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instance_events_total",
				Help:      "Instance lifecycle events (created, recycled, evicted, poisoned)",
			},
			[]string{"contract", "event"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of http requests",
			},
			[]string{"code", "method", "route"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration taken to complete http request",
			},
			[]string{"code", "method", "route"},
		),
		contractsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "contracts_loaded",
				Help:      "Number of registered contracts",
			},
		),
	}

	reg.MustRegister(
		m.calls,
		m.callDuration,
		m.resultSize,
		m.instances,
		m.instanceEvents,
		m.httpRequests,
		m.httpDuration,
		m.contractsLoaded,
	)
	return m
}

// ObserveCall records one finished contract call.
func (m *Metrics) ObserveCall(contract, outcome string, d time.Duration, resultBytes int) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(contract, outcome).Inc()
	m.callDuration.WithLabelValues(contract).Observe(d.Seconds())
	if outcome == OutcomeOK {
		m.resultSize.WithLabelValues(contract).Observe(float64(resultBytes))
	}
}

// InstanceEvent records a lifecycle event and adjusts the live gauge by delta.
func (m *Metrics) InstanceEvent(contract, event string, delta int) {
	if m == nil {
		return
	}
	m.instanceEvents.WithLabelValues(contract, event).Inc()
	if delta != 0 {
		m.instances.WithLabelValues(contract).Add(float64(delta))
	}
}

// SetContracts sets the number of registered contracts.
func (m *Metrics) SetContracts(n int) {
	if m == nil {
		return
	}
	m.contractsLoaded.Set(float64(n))
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(code int, method, route string, d time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"code":   strconv.Itoa(code),
		"method": method,
		"route":  route,
	}
	m.httpRequests.With(labels).Inc()
	m.httpDuration.With(labels).Observe(d.Seconds())
}
