package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"triage_worker/core/domain"
)

func TestTriageMetrics_RecordOutcome(t *testing.T) {
	m := NewTriageMetrics(prometheus.NewRegistry())

	m.RecordOutcome(domain.OutcomeLabeled, domain.LabelFYI)
	m.RecordOutcome(domain.OutcomeLabeled, domain.LabelFYI)
	m.RecordOutcome(domain.OutcomeSkippedDuplicate, 0)

	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("LABELED", "FYI")); got != 2 {
		t.Errorf("expected 2 labeled FYI, got %v", got)
	}
	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("SKIPPED_DUPLICATE", "none")); got != 1 {
		t.Errorf("expected 1 duplicate, got %v", got)
	}
}

func TestTriageMetrics_RecordScan(t *testing.T) {
	m := NewTriageMetrics(prometheus.NewRegistry())

	m.RecordScan(2*time.Second, nil)
	m.RecordScan(time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(m.Scans.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok scan, got %v", got)
	}
	if got := testutil.ToFloat64(m.Scans.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed scan, got %v", got)
	}
	if got := m.ScanLatency().Count; got != 2 {
		t.Errorf("expected 2 latency samples, got %d", got)
	}
}

func TestTriageMetrics_Cache(t *testing.T) {
	m := NewTriageMetrics(prometheus.NewRegistry())

	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()

	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestLatencyTracker(t *testing.T) {
	tests := []struct {
		name    string
		window  int
		samples []time.Duration
		wantN   int
		wantMax time.Duration
	}{
		{"empty", 10, nil, 0, 0},
		{"within window", 10, []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}, 3, 3 * time.Millisecond},
		{"evicts oldest", 2, []time.Duration{9 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}, 2, 2 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lt := NewLatencyTracker(tt.window)
			for _, d := range tt.samples {
				lt.Record(d)
			}
			stats := lt.Stats()
			if stats.Count != tt.wantN {
				t.Errorf("expected count %d, got %d", tt.wantN, stats.Count)
			}
			if stats.Max != tt.wantMax {
				t.Errorf("expected max %v, got %v", tt.wantMax, stats.Max)
			}
		})
	}
}
