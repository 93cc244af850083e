// ABOUTME: Prometheus collectors for delivery attempts, outcomes, and dedup activity.
// ABOUTME: All recorders are nil-safe so components work without metrics wired in.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "courier"

// Delivery counts sender-side activity.
type Delivery struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
}

// Dedup counts receiver-side dedup activity.
type Dedup struct {
	hits      prometheus.Counter
	inserts   prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

// Set bundles every collector the process exposes.
type Set struct {
	Delivery *Delivery
	Dedup    *Dedup
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) (*Set, error) {
	d := &Delivery{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "attempts_total",
				Help:      "Delivery attempts by message type and result.",
			},
			[]string{"type", "result"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "outcomes_total",
				Help:      "Terminal delivery outcomes by message type.",
			},
			[]string{"type", "outcome"},
		),
	}
	dd := &Dedup{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "hits_total",
			Help:      "Frames recognised as already written.",
		}),
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "inserts_total",
			Help:      "Content hashes recorded.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "evictions_total",
			Help:      "Entries evicted by capacity pressure.",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "entries",
			Help:      "Entries currently retained.",
		}),
	}

	for _, c := range []prometheus.Collector{d.attempts, d.outcomes, dd.hits, dd.inserts, dd.evictions, dd.size} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &Set{Delivery: d, Dedup: dd}, nil
}

// Attempt records one delivery attempt.
func (d *Delivery) Attempt(msgType, result string) {
	if d == nil {
		return
	}
	d.attempts.WithLabelValues(msgType, result).Inc()
}

// Outcome records one terminal outcome.
func (d *Delivery) Outcome(msgType, outcome string) {
	if d == nil {
		return
	}
	d.outcomes.WithLabelValues(msgType, outcome).Inc()
}

// Hit records a duplicate receipt.
func (d *Dedup) Hit() {
	if d == nil {
		return
	}
	d.hits.Inc()
}

// Insert records a new entry and the resulting size.
func (d *Dedup) Insert(size int) {
	if d == nil {
		return
	}
	d.inserts.Inc()
	d.size.Set(float64(size))
}

// Evict records an eviction.
func (d *Dedup) Evict() {
	if d == nil {
		return
	}
	d.evictions.Inc()
}

// Size sets the retained-entry gauge.
func (d *Dedup) Size(size int) {
	if d == nil {
		return
	}
	d.size.Set(float64(size))
}
