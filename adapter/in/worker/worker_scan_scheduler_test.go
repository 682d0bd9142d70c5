package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"triage_worker/core/domain"
)

type blockingScans struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingScans) RunScan(ctx context.Context) (*domain.ScanSummary, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &domain.ScanSummary{ScanID: "s"}, nil
}

func (b *blockingScans) Reset(context.Context) (int, error) { return 0, nil }

func newBlockingScans() *blockingScans {
	return &blockingScans{started: make(chan struct{}), release: make(chan struct{})}
}

func TestScanScheduler_InvalidSpec(t *testing.T) {
	s := NewScanScheduler(newBlockingScans(), "not a schedule", zerolog.Nop())
	if err := s.Start(); err == nil {
		t.Error("expected error for invalid spec, got nil")
	}
}

func TestScanScheduler_StartStop(t *testing.T) {
	s := NewScanScheduler(newBlockingScans(), "@every 1h", zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("expected second start to fail")
	}
	if s.NextRun().IsZero() {
		t.Error("expected next run to be scheduled")
	}
	s.Stop()
	if !s.NextRun().IsZero() {
		t.Error("expected zero next run after stop")
	}
}

func TestScanScheduler_SkipsOverlappingRuns(t *testing.T) {
	scans := newBlockingScans()
	s := NewScanScheduler(scans, "@every 1h", zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer s.Stop()

	job := s.cron.Entry(s.entryID).WrappedJob
	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-scans.started

	// second tick while the first scan is blocked
	job.Run()
	if got := scans.calls.Load(); got != 1 {
		t.Errorf("expected overlapping run to be skipped, got %d calls", got)
	}

	close(scans.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not finish")
	}
}

func TestScanScheduler_StopCancelsScan(t *testing.T) {
	scans := newBlockingScans()
	s := NewScanScheduler(scans, "@every 1h", zerolog.Nop())
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		s.cron.Entry(s.entryID).WrappedJob.Run()
		close(finished)
	}()
	<-scans.started

	s.Stop()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not cancel the running scan")
	}
}
