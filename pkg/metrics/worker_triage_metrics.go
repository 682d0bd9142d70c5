// Package metrics exposes scan and cache counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"triage_worker/core/domain"
)

const namespace = "triage"

// TriageMetrics records dispatch outcomes, scan runs and LLM cache lookups.
type TriageMetrics struct {
	Outcomes     *prometheus.CounterVec
	Scans        *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	LastScan     prometheus.Gauge

	latency *LatencyTracker
}

// NewTriageMetrics registers the collectors on reg. Pass
// prometheus.DefaultRegisterer to serve them from promhttp.Handler.
func NewTriageMetrics(reg prometheus.Registerer) *TriageMetrics {
	factory := promauto.With(reg)
	return &TriageMetrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages dispatched, by outcome and label",
		}, []string{"outcome", "label"}),
		Scans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scans run, by result",
		}, []string{"result"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of one scan",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cache_hits_total",
			Help:      "LLM responses served from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cache_misses_total",
			Help:      "LLM calls that went to the provider",
		}),
		LastScan: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Completion time of the most recent successful scan",
		}),
		latency: NewLatencyTracker(100),
	}
}

func (m *TriageMetrics) RecordOutcome(outcome domain.Outcome, label domain.TriageLabel) {
	name := "none"
	if label.Valid() {
		name = label.String()
	}
	m.Outcomes.WithLabelValues(string(outcome), name).Inc()
}

func (m *TriageMetrics) RecordScan(d time.Duration, err error) {
	m.ScanDuration.Observe(d.Seconds())
	m.latency.Record(d)
	if err != nil {
		m.Scans.WithLabelValues("error").Inc()
		return
	}
	m.Scans.WithLabelValues("ok").Inc()
	m.LastScan.SetToCurrentTime()
}

func (m *TriageMetrics) CacheHit()  { m.CacheHits.Inc() }
func (m *TriageMetrics) CacheMiss() { m.CacheMisses.Inc() }

// ScanLatency summarizes recent scan durations.
func (m *TriageMetrics) ScanLatency() LatencyStats {
	return m.latency.Stats()
}
