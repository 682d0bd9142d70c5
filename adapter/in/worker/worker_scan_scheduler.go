package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"triage_worker/core/port/in"
	"triage_worker/pkg/apperr"
)

// =============================================================================
// ScanScheduler - 주기적 스캔 실행
// =============================================================================

// DefaultScanTimeout bounds one scheduled scan.
const DefaultScanTimeout = 5 * time.Minute

// ScanScheduler runs scans on a cron schedule. A tick that fires while the
// previous scan is still running is skipped.
type ScanScheduler struct {
	scans   in.ScanService
	spec    string
	timeout time.Duration
	log     zerolog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	running bool
}

// NewScanScheduler accepts standard five-field specs and descriptors such as "@every 5m".
func NewScanScheduler(scans in.ScanService, spec string, log zerolog.Logger) *ScanScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	clog := cronLogger{log: log}
	return &ScanScheduler{
		scans:   scans,
		spec:    spec,
		timeout: DefaultScanTimeout,
		log:     log,
		cron: cron.New(
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *ScanScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scan scheduler is already running")
	}
	id, err := s.cron.AddFunc(s.spec, s.runScan)
	if err != nil {
		return fmt.Errorf("invalid scan schedule %q: %w", s.spec, err)
	}
	s.entryID = id
	s.cron.Start()
	s.running = true

	s.log.Info().Str("schedule", s.spec).Time("next_run", s.cron.Entry(id).Next).Msg("scan scheduler started")
	return nil
}

// Stop cancels an in-flight scan and waits for it to return.
func (s *ScanScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	s.log.Info().Msg("scan scheduler stopped")
}

// NextRun returns the zero time when the scheduler is not running.
func (s *ScanScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *ScanScheduler) runScan() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	summary, err := s.scans.RunScan(ctx)
	switch {
	case errors.Is(err, apperr.ErrNoCredential):
		s.log.Warn().Msg("no refresh token stored, skipping scheduled scan")
	case err != nil:
		s.log.Error().Err(err).Msg("scheduled scan failed")
	default:
		s.log.Info().
			Str("scan_id", summary.ScanID).
			Int("processed", summary.ProcessedCount).
			Int("skipped", summary.SkippedCount).
			Int("failed", summary.FailedCount).
			Msg("scheduled scan finished")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
