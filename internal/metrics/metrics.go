// Package metrics exposes Prometheus collectors for the ledger.
//
// A nil *Metrics is valid and records nothing, so collaborators can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "splitledger"

// Metrics holds the ledger's collectors.
type Metrics struct {
	entries     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	computeTime *prometheus.HistogramVec
	faults      *prometheus.CounterVec
	recurring   *prometheus.CounterVec
	rpcs        *prometheus.CounterVec
	rpcTime     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_created_total",
			Help:      "Ledger entries created, by kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Ledger entry state transitions, by kind and target state.",
		}, []string{"kind", "state"}),
		computeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "computation_duration_seconds",
			Help:      "Time spent computing balances and settlements.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_faults_total",
			Help:      "Balance computations that failed the zero-sum check or similar invariants.",
		}, []string{"op"}),
		recurring: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recurring_runs_total",
			Help:      "Recurring template materializations, by outcome.",
		}, []string{"outcome"}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPCs served, by procedure and code.",
		}, []string{"procedure", "code"}),
		rpcTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency, by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
	}
	reg.MustRegister(m.entries, m.transitions, m.computeTime, m.faults, m.recurring, m.rpcs, m.rpcTime)
	return m
}

// EntryCreated counts a new expense or payment.
func (m *Metrics) EntryCreated(kind string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(kind).Inc()
}

// Transition counts a successful state change.
func (m *Metrics) Transition(kind, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, state).Inc()
}

// ObserveComputation records how long op took.
func (m *Metrics) ObserveComputation(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.computeTime.WithLabelValues(op).Observe(d.Seconds())
}

// ConsistencyFault counts a failed invariant check.
func (m *Metrics) ConsistencyFault(op string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(op).Inc()
}

// RecurringRun counts one template processed by the sweep.
// outcome is one of created, skipped or failed.
func (m *Metrics) RecurringRun(outcome string) {
	if m == nil {
		return
	}
	m.recurring.WithLabelValues(outcome).Inc()
}

// ObserveRPC records one served RPC.
func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcs.WithLabelValues(procedure, code).Inc()
	m.rpcTime.WithLabelValues(procedure).Observe(d.Seconds())
}
