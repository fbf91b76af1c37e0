// Package observability holds the Prometheus collectors of the ingestion
// pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xtxerr/nodepulse/internal/errors"
)

const namespace = "nodepulse"

// Metrics is the set of ingestion collectors. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	events        *prometheus.CounterVec
	samples       prometheus.Counter
	ringFailures  prometheus.Counter
	ringWrites    prometheus.Counter
	snapshotBytes prometheus.Histogram
	cacheLookups  *prometheus.CounterVec
	latency       prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Ingestion events by outcome.",
		}, []string{"outcome"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_samples_total",
			Help:      "Samples received in accepted batches.",
		}),
		ringWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_writes_total",
			Help:      "Ring series appends attempted.",
		}),
		ringFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_write_failures_total",
			Help:      "Ring series appends that failed.",
		}),
		snapshotBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_size_bytes",
			Help:      "Compressed overview snapshot size.",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_cache_lookups_total",
			Help:      "Monitor config cache lookups by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion event latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}

	// Pre-create the label values so they export as zero.
	for _, k := range errors.AllKinds() {
		m.events.WithLabelValues(outcomeLabel(k))
	}
	m.events.WithLabelValues("ok")
	m.cacheLookups.WithLabelValues("hit")
	m.cacheLookups.WithLabelValues("miss")

	reg.MustRegister(m.events, m.samples, m.ringWrites, m.ringFailures, m.snapshotBytes, m.cacheLookups, m.latency)
	return m
}

func outcomeLabel(k errors.Kind) string {
	return k.String()
}

// EventSucceeded records an accepted event.
func (m *Metrics) EventSucceeded(samples int, took time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues("ok").Inc()
	m.samples.Add(float64(samples))
	m.latency.Observe(took.Seconds())
}

// EventFailed records a rejected event.
func (m *Metrics) EventFailed(err error, took time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcomeLabel(errors.KindOf(err))).Inc()
	m.latency.Observe(took.Seconds())
}

// RingWrites records attempted and failed ring appends.
func (m *Metrics) RingWrites(attempted, failed int) {
	if m == nil {
		return
	}
	m.ringWrites.Add(float64(attempted))
	m.ringFailures.Add(float64(failed))
}

// SnapshotSize records one stored snapshot.
func (m *Metrics) SnapshotSize(n int) {
	if m == nil {
		return
	}
	m.snapshotBytes.Observe(float64(n))
}

// CacheHit implements monitor.Observer.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss implements monitor.Observer.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}
